package handler

import (
	"log/slog"
	"net/http"
	"time"

	"lending-engine/internal/api/handler/dto"
	"lending-engine/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type AuthHandler struct {
	cfg    config.AuthConfig
	logger *slog.Logger
}

func NewAuthHandler(cfg config.AuthConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{cfg: cfg, logger: logger.With("component", "AuthHandler")}
}

// GenerateToken godoc
// @Summary Generate an API token
// @Description Issues a short-lived JWT for exercising the protected endpoints.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body dto.TokenRequest true "Token request"
// @Success 200 {object} map[string]string
// @Failure 400 {object} dto.ErrorResponse "Missing username"
// @Router /auth/token [post]
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req dto.TokenRequest
	if err := decodeJSON(r, &req); err != nil || req.Username == "" {
		respondErrorMessage(w, h.logger, http.StatusBadRequest, "VALIDATION_FAILED", "username is required")
		return
	}

	claims := jwt.MapClaims{
		"sub": req.Username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to sign token", "error", err)
		respondErrorMessage(w, h.logger, http.StatusInternalServerError, "INTERNAL_ERROR", "could not generate token")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, map[string]string{"token": signed})
}
