package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/auth"
	"github.com/vovakirdan/wiredesk/internal/store"
)

// APIHandlers provides HTTP handlers for identity endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// SessionResponse represents the anonymous session response body.
type SessionResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// UserSession issues a token for an anonymous customer.
// POST /api/session
func (h *APIHandlers) UserSession(c *gin.Context) {
	token, userID, err := h.authService.IssueToken(c.Request.Context(), store.SenderUser, "")
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue user token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Error: "internal server error"})
		return
	}

	h.log.Info().Str("user_id", userID).Msg("user session created")
	c.JSON(http.StatusOK, SessionResponse{Token: token, UserID: userID})
}
