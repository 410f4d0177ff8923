package oauth

import (
	"context"

	"authorization-server/internal/database"
	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"go.uber.org/zap"
)

// IntrospectionService implements RFC 7662 introspection and RFC 7009
// revocation. Both require client authentication.
type IntrospectionService struct {
	registry *ClientRegistry
	tokens   *TokenIssuer
	repo     database.Repository
	opts     Options
	metrics  *Metrics
	logger   *zap.Logger
}

func NewIntrospectionService(registry *ClientRegistry, tokens *TokenIssuer, repo database.Repository, opts Options, metrics *Metrics, logger *zap.Logger) *IntrospectionService {
	opts.setDefaults()
	return &IntrospectionService{
		registry: registry,
		tokens:   tokens,
		repo:     repo,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

var inactive = &models.IntrospectionResponse{Active: false}

// Introspect reports a token's state to a confidential client. Only client
// authentication can fail; anything wrong with the token itself yields
// {"active": false}.
func (s *IntrospectionService) Introspect(ctx context.Context, creds ClientCredentials, token string, hint TokenHint) (*models.IntrospectionResponse, error) {
	caller, err := s.registry.Authenticate(ctx, creds)
	if err != nil {
		s.metrics.failed(err)
		return nil, err
	}
	// A public client proves nothing beyond knowing its own id.
	if !caller.Confidential {
		err := oautherrors.InvalidClient("Public clients may not introspect tokens")
		s.metrics.failed(err)
		s.logger.Info("Introspection by public client refused", zap.String("client_id", caller.ID))
		return nil, err
	}

	tok, kind, err := s.tokens.Lookup(ctx, token, hint)
	if err != nil {
		s.logger.Error("Introspection lookup failed", zap.String("client_id", creds.ClientID), zap.Error(err))
		return inactive, nil
	}
	if tok == nil || !s.tokens.Active(tok, kind) {
		return inactive, nil
	}

	// A deactivated client's tokens are reported inactive.
	owner, err := s.registry.Lookup(ctx, tok.ClientID)
	if err != nil || owner == nil {
		return inactive, nil
	}

	resp := &models.IntrospectionResponse{
		Active:    true,
		ClientID:  tok.ClientID,
		Scope:     tok.Scope,
		TokenType: tok.TokenType,
		Iat:       tok.IssuedAt.Unix(),
		Exp:       tok.AccessExpiresAt.Unix(),
		Sub:       tok.UserID,
	}
	if kind == HintRefreshToken {
		resp.TokenType = string(HintRefreshToken)
		resp.Exp = tok.RefreshExpiresAt.Unix()
	}
	if tok.UserID == "" {
		resp.Sub = tok.ClientID
	} else if user, err := s.repo.GetUserByID(ctx, tok.UserID); err == nil && user != nil {
		resp.Username = user.Username
	}
	return resp, nil
}

// Revoke authenticates the caller and revokes the token. Success is
// reported for unknown tokens and for tokens owned by other clients.
func (s *IntrospectionService) Revoke(ctx context.Context, creds ClientCredentials, token string, hint TokenHint) error {
	client, err := s.registry.Authenticate(ctx, creds)
	if err != nil {
		s.metrics.failed(err)
		return err
	}
	if err := s.tokens.Revoke(ctx, client, token, hint); err != nil {
		s.metrics.failed(err)
		return err
	}
	return nil
}
