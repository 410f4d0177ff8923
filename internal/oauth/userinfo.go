package oauth

import (
	"context"

	"authorization-server/internal/database"
	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"go.uber.org/zap"
)

// UserInfoResolver maps an access token's scopes to OpenID Connect claims.
type UserInfoResolver struct {
	repo   database.Repository
	logger *zap.Logger
}

func NewUserInfoResolver(repo database.Repository, logger *zap.Logger) *UserInfoResolver {
	return &UserInfoResolver{repo: repo, logger: logger}
}

// Resolve returns the claims released for tok, which must be a live access
// token granted the openid scope.
func (u *UserInfoResolver) Resolve(ctx context.Context, tok *models.Token) (*models.UserInfo, error) {
	if !tok.HasScope(models.ScopeOpenID) {
		return nil, oautherrors.AccessDenied("The access token was not granted the openid scope")
	}
	if tok.UserID == "" {
		return nil, oautherrors.AccessDenied("The access token is not bound to a user")
	}

	user, err := u.repo.GetUserByID(ctx, tok.UserID)
	if err != nil {
		u.logger.Error("Failed to load user", zap.String("user_id", tok.UserID), zap.Error(err))
		return nil, oautherrors.ServerError(err)
	}
	if user == nil {
		return nil, oautherrors.AccessDenied("Unknown user")
	}

	info := &models.UserInfo{Sub: user.ID}
	if tok.HasScope(models.ScopeProfile) {
		info.Name = user.FullName
		info.PreferredUsername = user.Username
		info.Picture = user.Picture
	}
	if tok.HasScope(models.ScopeEmail) {
		info.Email = user.Email
		verified := user.EmailVerified
		info.EmailVerified = &verified
	}
	return info, nil
}
