package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/auth"
	"github.com/vovakirdan/wiredesk/internal/config"
	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/service/desk"
	"github.com/vovakirdan/wiredesk/internal/store"
)

// Services bundles the components the transport shell exposes.
type Services struct {
	Pipeline   *core.Pipeline
	Assignment *core.AssignmentService
	Registry   *core.Registry
	Desk       *desk.Service
	Auth       *auth.Service
}

// NewServer builds an HTTP server with REST and WebSocket routes.
func NewServer(svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(svc.Auth, logger)
	router.POST("/api/session", apiHandlers.UserSession)

	chats := NewChatHandlers(svc.Pipeline, svc.Assignment, svc.Desk, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(svc.Auth, logger))
	api.Use(BodyLimitMiddleware(cfg.MaxMessageBytes))
	{
		api.POST("/chats/messages/user", RequireKind(store.SenderUser), chats.SubmitUserMessage)
		api.POST("/chats/messages/agent", RequireKind(store.SenderAgent), chats.SubmitAgentMessage)
		api.POST("/chats/messages/canned", chats.SubmitCannedMessage)
		api.POST("/chats/:id/claim", RequireKind(store.SenderAgent), chats.ClaimChat)
		api.GET("/chats/:id", chats.GetChat)
		api.GET("/chats/:id/messages", chats.ListMessages)
		api.PATCH("/chats/:id/urgent", RequireKind(store.SenderAgent), chats.MarkChatUrgent)

		api.GET("/messages/search", RequireKind(store.SenderAgent), chats.SearchMessages)
		api.GET("/messages/urgent", RequireKind(store.SenderAgent), chats.ListUrgentMessages)
		api.PATCH("/messages/:id/urgent", chats.MarkMessageUrgent)

		api.GET("/agents/:id/chats", RequireKind(store.SenderAgent), chats.ListAgentChats)
	}

	// The websocket endpoint bypasses gin: its response writer breaks hijacked frames.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(svc.Registry, svc.Auth, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
