package database

import (
	"context"
	"errors"
	"time"

	"authorization-server/internal/models"
)

// Sentinel errors returned by Repository implementations. Lookups that find
// nothing return (nil, nil) instead of ErrNotFound.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")

	// ErrCodeNotRedeemable means the conditional mark-used update matched no
	// row: the code was already used, has expired, or was deleted.
	ErrCodeNotRedeemable = errors.New("authorization code is no longer redeemable")

	// ErrTokenNotRotatable means the conditional revoke of the previous token
	// matched no row: it was already revoked or its refresh token expired.
	ErrTokenNotRotatable = errors.New("token is no longer rotatable")
)

// Repository defines the interface for database operations
type Repository interface {
	Close() error
	Ping(ctx context.Context) error

	// Clients
	CreateClient(ctx context.Context, client *models.Client) error
	GetClientByID(ctx context.Context, clientID string) (*models.Client, error)
	UpdateClient(ctx context.Context, client *models.Client) error
	ListClients(ctx context.Context) ([]*models.Client, error)
	// DeleteClient removes a client together with its codes and tokens.
	DeleteClient(ctx context.Context, clientID string) error

	// Authorization codes
	SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, codeHash string) (*models.AuthorizationCode, error)
	DeleteAuthorizationCode(ctx context.Context, codeHash string) error
	// RedeemAuthorizationCode marks the code used only if it is still unused
	// and unexpired at now, and inserts token in the same transaction.
	RedeemAuthorizationCode(ctx context.Context, codeHash string, token *models.Token, now time.Time) error

	// Tokens
	CreateToken(ctx context.Context, token *models.Token) error
	GetTokenByAccessHash(ctx context.Context, hash string) (*models.Token, error)
	GetTokenByRefreshHash(ctx context.Context, hash string) (*models.Token, error)
	// RotateToken revokes oldID only if it is not yet revoked and its refresh
	// token is unexpired at now, and inserts next in the same transaction.
	RotateToken(ctx context.Context, oldID string, next *models.Token, now time.Time) error
	// RevokeToken marks a token revoked. Revoking a revoked token is a no-op.
	RevokeToken(ctx context.Context, tokenID string, now time.Time) error
	RevokeTokenFamily(ctx context.Context, familyID string, now time.Time) (int64, error)
	RevokeTokensForCode(ctx context.Context, codeHash string, now time.Time) (int64, error)

	// Users
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpsertUser(ctx context.Context, user models.User) error
}
