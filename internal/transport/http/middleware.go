package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/auth"
	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/store"
)

const (
	// ContextKeySubject is the context key for the authenticated agent or user ID.
	ContextKeySubject = "subject"
	// ContextKeyKind is the context key for the authenticated identity kind.
	ContextKeyKind = "kind"
)

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			abortUnauthorized(c, "missing authorization header")
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(ContextKeySubject, claims.Subject)
		c.Set(ContextKeyKind, claims.Kind)

		c.Next()
	}
}

// RequireKind rejects requests from identities of any other kind.
func RequireKind(kind store.SenderType) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got, _ := c.Get(ContextKeyKind); got != kind {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:  "forbidden",
				Error: "only " + string(kind) + "s may call this endpoint",
			})
			return
		}
		c.Next()
	}
}

// BodyLimitMiddleware caps request bodies at limit bytes.
func BodyLimitMiddleware(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: core.ErrCodeUnauthorized, Error: msg})
}

func identity(c *gin.Context) (store.SenderType, string) {
	kind, _ := c.Get(ContextKeyKind)
	subject, _ := c.Get(ContextKeySubject)
	k, _ := kind.(store.SenderType)
	s, _ := subject.(string)
	return k, s
}
