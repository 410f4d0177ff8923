package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"authorization-server/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gocloud.dev/postgres"
	_ "gocloud.dev/postgres/awspostgres"
	_ "gocloud.dev/postgres/gcppostgres"
)

const uniqueViolation = "23505"

// PostgresRepository handles database operations
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// NewRepository creates a new repository instance
func NewRepository(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresRepository, error) {
	// Retry connection with linear backoff
	var db *sql.DB
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		db, err = postgres.Open(ctx, databaseURL)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				break
			}
			db.Close()
		}
		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * time.Second
			logger.Warn("Failed to connect to database, retrying...", zap.Int("attempt", i+1), zap.Duration("wait", waitTime), zap.Error(err))
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	return &PostgresRepository{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping verifies connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const clientColumns = `client_id, client_secret_hash, client_name, client_uri, logo_uri,
	redirect_uris, scopes, grant_types, response_types, confidential, require_pkce,
	access_token_lifetime, refresh_token_lifetime, rate_limit, active, created_at, updated_at`

// CreateClient inserts a new client.
func (r *PostgresRepository) CreateClient(ctx context.Context, client *models.Client) error {
	query := `INSERT INTO oauth_clients (` + clientColumns + `)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.SecretHash,
		client.Name,
		client.URI,
		client.LogoURI,
		pq.Array(client.RedirectURIs),
		pq.Array(client.Scopes),
		pq.Array(client.GrantTypes),
		pq.Array(client.ResponseTypes),
		client.Confidential,
		client.RequirePKCE,
		client.AccessTokenLifetime,
		client.RefreshTokenLifetime,
		client.RateLimit,
		client.Active,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		r.logger.Error("Failed to create client", zap.String("client_id", client.ID), zap.Error(err))
		return err
	}
	return nil
}

// GetClientByID retrieves a client by client_id
func (r *PostgresRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM oauth_clients WHERE client_id = $1`

	client, err := scanClient(r.db.QueryRowContext(ctx, query, clientID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get client by ID", zap.String("client_id", clientID), zap.Error(err))
		return nil, err
	}
	return client, nil
}

// UpdateClient overwrites the mutable client fields.
func (r *PostgresRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	query := `
		UPDATE oauth_clients
		SET client_secret_hash = NULLIF($2, ''),
		    client_name = $3,
		    client_uri = $4,
		    logo_uri = $5,
		    redirect_uris = $6,
		    scopes = $7,
		    grant_types = $8,
		    response_types = $9,
		    confidential = $10,
		    require_pkce = $11,
		    access_token_lifetime = $12,
		    refresh_token_lifetime = $13,
		    rate_limit = $14,
		    active = $15,
		    updated_at = $16
		WHERE client_id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.SecretHash,
		client.Name,
		client.URI,
		client.LogoURI,
		pq.Array(client.RedirectURIs),
		pq.Array(client.Scopes),
		pq.Array(client.GrantTypes),
		pq.Array(client.ResponseTypes),
		client.Confidential,
		client.RequirePKCE,
		client.AccessTokenLifetime,
		client.RefreshTokenLifetime,
		client.RateLimit,
		client.Active,
		client.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update client", zap.String("client_id", client.ID), zap.Error(err))
		return err
	}
	return requireOneRow(res)
}

// ListClients returns every registered client ordered by creation time.
func (r *PostgresRepository) ListClients(ctx context.Context) ([]*models.Client, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM oauth_clients ORDER BY created_at`)
	if err != nil {
		r.logger.Error("Failed to list clients", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// DeleteClient hard-deletes a client; codes and tokens cascade.
func (r *PostgresRepository) DeleteClient(ctx context.Context, clientID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oauth_clients WHERE client_id = $1`, clientID)
	if err != nil {
		r.logger.Error("Failed to delete client", zap.String("client_id", clientID), zap.Error(err))
		return err
	}
	return requireOneRow(res)
}

// SaveAuthorizationCode persists a freshly issued code.
func (r *PostgresRepository) SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error {
	query := `
		INSERT INTO oauth_authorization_codes
			(code_hash, client_id, user_id, redirect_uri, scope, state, nonce,
			 code_challenge, code_challenge_method, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		code.CodeHash,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		code.Scope,
		code.State,
		code.Nonce,
		code.CodeChallenge,
		code.CodeChallengeMethod,
		code.CreatedAt,
		code.ExpiresAt,
		code.Used,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		r.logger.Error("Failed to save authorization code", zap.String("client_id", code.ClientID), zap.Error(err))
		return err
	}
	return nil
}

// GetAuthorizationCode looks a code up by hash.
func (r *PostgresRepository) GetAuthorizationCode(ctx context.Context, codeHash string) (*models.AuthorizationCode, error) {
	query := `
		SELECT code_hash, client_id, user_id, redirect_uri, scope, state, nonce,
		       code_challenge, code_challenge_method, created_at, expires_at, used
		FROM oauth_authorization_codes
		WHERE code_hash = $1
	`
	var code models.AuthorizationCode
	err := r.db.QueryRowContext(ctx, query, codeHash).Scan(
		&code.CodeHash,
		&code.ClientID,
		&code.UserID,
		&code.RedirectURI,
		&code.Scope,
		&code.State,
		&code.Nonce,
		&code.CodeChallenge,
		&code.CodeChallengeMethod,
		&code.CreatedAt,
		&code.ExpiresAt,
		&code.Used,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get authorization code", zap.Error(err))
		return nil, err
	}
	return &code, nil
}

// DeleteAuthorizationCode removes a code. Deleting a missing code is not an error.
func (r *PostgresRepository) DeleteAuthorizationCode(ctx context.Context, codeHash string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM oauth_authorization_codes WHERE code_hash = $1`, codeHash); err != nil {
		r.logger.Error("Failed to delete authorization code", zap.Error(err))
		return err
	}
	return nil
}

// RedeemAuthorizationCode atomically consumes the code and stores the token
// issued for it.
func (r *PostgresRepository) RedeemAuthorizationCode(ctx context.Context, codeHash string, token *models.Token, now time.Time) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE oauth_authorization_codes
		SET used = TRUE
		WHERE code_hash = $1 AND used = FALSE AND expires_at > $2
	`, codeHash, now)
	if err != nil {
		r.logger.Error("Failed to mark authorization code used", zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		err = ErrCodeNotRedeemable
		return err
	}

	if err = insertToken(ctx, tx, token); err != nil {
		r.logger.Error("Failed to insert token for authorization code", zap.String("client_id", token.ClientID), zap.Error(err))
		return err
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Failed to commit code redemption", zap.Error(err))
		return err
	}
	return nil
}

// CreateToken stores a newly issued token.
func (r *PostgresRepository) CreateToken(ctx context.Context, token *models.Token) error {
	if err := insertToken(ctx, r.db, token); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		r.logger.Error("Failed to create token", zap.String("client_id", token.ClientID), zap.Error(err))
		return err
	}
	return nil
}

const tokenColumns = `id, family_id, client_id, user_id, code_hash, token_type,
	access_token_hash, refresh_token_hash, scope, issued_at, access_expires_at,
	refresh_expires_at, revoked, revoked_at`

// GetTokenByAccessHash looks a token up by its access token hash.
func (r *PostgresRepository) GetTokenByAccessHash(ctx context.Context, hash string) (*models.Token, error) {
	return r.getToken(ctx, `SELECT `+tokenColumns+` FROM oauth_tokens WHERE access_token_hash = $1`, hash)
}

// GetTokenByRefreshHash looks a token up by its refresh token hash.
func (r *PostgresRepository) GetTokenByRefreshHash(ctx context.Context, hash string) (*models.Token, error) {
	return r.getToken(ctx, `SELECT `+tokenColumns+` FROM oauth_tokens WHERE refresh_token_hash = $1`, hash)
}

func (r *PostgresRepository) getToken(ctx context.Context, query, hash string) (*models.Token, error) {
	token, err := scanToken(r.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get token", zap.Error(err))
		return nil, err
	}
	return token, nil
}

// RotateToken revokes the previous token of a lineage and stores its
// replacement in one transaction.
func (r *PostgresRepository) RotateToken(ctx context.Context, oldID string, next *models.Token, now time.Time) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE oauth_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND revoked = FALSE AND refresh_expires_at > $2
	`, oldID, now)
	if err != nil {
		r.logger.Error("Failed to revoke rotated token", zap.String("token_id", oldID), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		err = ErrTokenNotRotatable
		return err
	}

	if err = insertToken(ctx, tx, next); err != nil {
		r.logger.Error("Failed to insert rotated token", zap.String("client_id", next.ClientID), zap.Error(err))
		return err
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Failed to commit token rotation", zap.Error(err))
		return err
	}
	return nil
}

// RevokeToken marks one token revoked; already revoked tokens keep their
// original revocation time.
func (r *PostgresRepository) RevokeToken(ctx context.Context, tokenID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE oauth_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
		tokenID, now)
	if err != nil {
		r.logger.Error("Failed to revoke token", zap.String("token_id", tokenID), zap.Error(err))
		return err
	}
	return nil
}

// RevokeTokenFamily revokes every live token of a rotation lineage.
func (r *PostgresRepository) RevokeTokenFamily(ctx context.Context, familyID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE oauth_tokens SET revoked = TRUE, revoked_at = $2 WHERE family_id = $1 AND revoked = FALSE`,
		familyID, now)
	if err != nil {
		r.logger.Error("Failed to revoke token family", zap.String("family_id", familyID), zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}

// RevokeTokensForCode revokes every live token descending from an
// authorization code, including later rotations.
func (r *PostgresRepository) RevokeTokensForCode(ctx context.Context, codeHash string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE oauth_tokens SET revoked = TRUE, revoked_at = $2
		WHERE revoked = FALSE
		  AND family_id IN (SELECT family_id FROM oauth_tokens WHERE code_hash = $1)
	`, codeHash, now)
	if err != nil {
		r.logger.Error("Failed to revoke tokens for code", zap.Error(err))
		return 0, err
	}
	return res.RowsAffected()
}

// GetUserByID retrieves a user by ID
func (r *PostgresRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, username, full_name, picture, email, email_verified, created_at, updated_at
		FROM oauth_users
		WHERE id = $1
	`

	var user models.User
	var email sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.FullName,
		&user.Picture,
		&email,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user by ID", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	// Convert NULL email to empty string
	user.Email = email.String

	return &user, nil
}

// UpsertUser mirrors a user record from the login system.
func (r *PostgresRepository) UpsertUser(ctx context.Context, user models.User) error {
	query := `
		INSERT INTO oauth_users (id, username, full_name, picture, email, email_verified, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NOW())
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    full_name = EXCLUDED.full_name,
		    picture = EXCLUDED.picture,
		    email = EXCLUDED.email,
		    email_verified = EXCLUDED.email_verified,
		    updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.FullName,
		user.Picture,
		user.Email,
		user.EmailVerified,
	); err != nil {
		r.logger.Error("Failed to upsert user", zap.String("user_id", user.ID), zap.Error(err))
		return err
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertToken(ctx context.Context, db execer, token *models.Token) error {
	query := `INSERT INTO oauth_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10, $11, $12, $13, $14)`

	_, err := db.ExecContext(ctx, query,
		token.ID,
		token.FamilyID,
		token.ClientID,
		token.UserID,
		token.CodeHash,
		token.TokenType,
		token.AccessTokenHash,
		token.RefreshTokenHash,
		token.Scope,
		token.IssuedAt,
		token.AccessExpiresAt,
		token.RefreshExpiresAt,
		token.Revoked,
		token.RevokedAt,
	)
	return err
}

func scanClient(row rowScanner) (*models.Client, error) {
	var client models.Client
	var secretHash sql.NullString
	err := row.Scan(
		&client.ID,
		&secretHash,
		&client.Name,
		&client.URI,
		&client.LogoURI,
		pq.Array(&client.RedirectURIs),
		pq.Array(&client.Scopes),
		pq.Array(&client.GrantTypes),
		pq.Array(&client.ResponseTypes),
		&client.Confidential,
		&client.RequirePKCE,
		&client.AccessTokenLifetime,
		&client.RefreshTokenLifetime,
		&client.RateLimit,
		&client.Active,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	client.SecretHash = secretHash.String
	return &client, nil
}

func scanToken(row rowScanner) (*models.Token, error) {
	var token models.Token
	var userID, codeHash, refreshHash sql.NullString
	var refreshExpiresAt, revokedAt sql.NullTime
	err := row.Scan(
		&token.ID,
		&token.FamilyID,
		&token.ClientID,
		&userID,
		&codeHash,
		&token.TokenType,
		&token.AccessTokenHash,
		&refreshHash,
		&token.Scope,
		&token.IssuedAt,
		&token.AccessExpiresAt,
		&refreshExpiresAt,
		&token.Revoked,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}
	token.UserID = userID.String
	token.CodeHash = codeHash.String
	token.RefreshTokenHash = refreshHash.String
	if refreshExpiresAt.Valid {
		t := refreshExpiresAt.Time
		token.RefreshExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		token.RevokedAt = &t
	}
	return &token, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
