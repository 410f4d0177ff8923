package handlers

import (
	"encoding/json"
	"net/http"

	"authorization-server/internal/auth"

	"go.uber.org/zap"
)

// JWKSHandler publishes the ID token verification keys
type JWKSHandler struct {
	keyManager *auth.KeyManager
	logger     *zap.Logger
}

func NewJWKSHandler(keyManager *auth.KeyManager, logger *zap.Logger) *JWKSHandler {
	return &JWKSHandler{
		keyManager: keyManager,
		logger:     logger,
	}
}

// HandleJWKS handles GET /oauth/jwks
// @Summary     JSON Web Key Set
// @Description Public keys for verifying ID tokens, including keys still in their rotation grace period
// @Tags        oidc
// @Produce     application/json
// @Success     200
// @Router      /oauth/jwks [get]
func (h *JWKSHandler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	keySet, err := h.keyManager.JWKSet()
	if err != nil {
		h.logger.Error("Failed to build JWKS", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data, err := json.Marshal(keySet)
	if err != nil {
		h.logger.Error("Failed to marshal JWKS", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	// Short max-age so rotated keys reach verifiers well within the grace period.
	w.Header().Set("Cache-Control", "public, max-age=900")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
