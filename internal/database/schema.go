package database

import (
	"context"
	"fmt"
)

// schemaStatements creates the tables the repository needs. Codes and tokens
// cascade with their client; users are referenced by id only.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS oauth_clients (
		client_id              TEXT PRIMARY KEY,
		client_secret_hash     TEXT,
		client_name            TEXT NOT NULL DEFAULT '',
		client_uri             TEXT NOT NULL DEFAULT '',
		logo_uri               TEXT NOT NULL DEFAULT '',
		redirect_uris          TEXT[] NOT NULL DEFAULT '{}',
		scopes                 TEXT[] NOT NULL DEFAULT '{}',
		grant_types            TEXT[] NOT NULL DEFAULT '{}',
		response_types         TEXT[] NOT NULL DEFAULT '{}',
		confidential           BOOLEAN NOT NULL DEFAULT FALSE,
		require_pkce           BOOLEAN NOT NULL DEFAULT TRUE,
		access_token_lifetime  INTEGER NOT NULL DEFAULT 3600,
		refresh_token_lifetime INTEGER NOT NULL DEFAULT 2592000,
		rate_limit             INTEGER NOT NULL DEFAULT 0,
		active                 BOOLEAN NOT NULL DEFAULT TRUE,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_users (
		id             TEXT PRIMARY KEY,
		username       TEXT NOT NULL DEFAULT '',
		full_name      TEXT NOT NULL DEFAULT '',
		picture        TEXT NOT NULL DEFAULT '',
		email          TEXT,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_authorization_codes (
		code_hash             TEXT PRIMARY KEY,
		client_id             TEXT NOT NULL REFERENCES oauth_clients(client_id) ON DELETE CASCADE,
		user_id               TEXT NOT NULL,
		redirect_uri          TEXT NOT NULL,
		scope                 TEXT NOT NULL DEFAULT '',
		state                 TEXT NOT NULL DEFAULT '',
		nonce                 TEXT NOT NULL DEFAULT '',
		code_challenge        TEXT NOT NULL DEFAULT '',
		code_challenge_method TEXT NOT NULL DEFAULT '',
		created_at            TIMESTAMPTZ NOT NULL,
		expires_at            TIMESTAMPTZ NOT NULL,
		used                  BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_tokens (
		id                 TEXT PRIMARY KEY,
		family_id          TEXT NOT NULL,
		client_id          TEXT NOT NULL REFERENCES oauth_clients(client_id) ON DELETE CASCADE,
		user_id            TEXT,
		code_hash          TEXT,
		token_type         TEXT NOT NULL DEFAULT 'Bearer',
		access_token_hash  TEXT NOT NULL UNIQUE,
		refresh_token_hash TEXT UNIQUE,
		scope              TEXT NOT NULL DEFAULT '',
		issued_at          TIMESTAMPTZ NOT NULL,
		access_expires_at  TIMESTAMPTZ NOT NULL,
		refresh_expires_at TIMESTAMPTZ,
		revoked            BOOLEAN NOT NULL DEFAULT FALSE,
		revoked_at         TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS oauth_tokens_family_idx ON oauth_tokens (family_id)`,
	`CREATE INDEX IF NOT EXISTS oauth_tokens_code_idx ON oauth_tokens (code_hash)`,
}

// EnsureSchema creates missing tables and indexes.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
