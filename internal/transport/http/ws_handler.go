package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/auth"
	"github.com/vovakirdan/wiredesk/internal/config"
	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/proto"
)

type wsActionKind int

const (
	actionHello wsActionKind = iota
	actionJoin
	actionSwitch
	actionLeave
)

type wsAction struct {
	kind   wsActionKind
	chatID string
}

var errSessionClosed = errors.New("session closed by server")

// WSHandler upgrades HTTP connections and bridges them to a core.Session.
type WSHandler struct {
	registry      *core.Registry
	auth          *auth.Service
	sessionBuffer int
	readLimit     int64
	rateLimit     int
	log           *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(registry *core.Registry, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		registry:      registry,
		auth:          authService,
		sessionBuffer: cfg.SessionBuffer,
		readLimit:     cfg.MaxMessageBytes,
		rateLimit:     cfg.RateLimitPerMinute,
		log:           logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws auth failed")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	session := core.NewSession(uuid.NewString(), claims.Kind, claims.Subject, h.sessionBuffer)
	if err := h.registry.Register(session); err != nil {
		h.log.Warn().Err(err).Msg("register ws session")
		conn.Close(websocket.StatusTryAgainLater, "server shutting down")
		return
	}
	defer h.registry.Unregister(session.ID)

	logger := h.log.With().Str("session_id", session.ID).Str("identity", session.Identity).Logger()
	logger.Debug().Str("kind", string(session.Kind)).Msg("ws session opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	limiter := newRateLimiter(h.rateLimit)
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, limiter, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, session, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	switch {
	case errors.Is(err, errSessionClosed):
		status = websocket.StatusGoingAway
		reason = "session closed"
	case err != nil && !errors.Is(err, context.Canceled):
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "internal error"
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
	logger.Debug().Msg("ws session closed")
}

func (h *WSHandler) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	session *core.Session,
	limiter *rateLimiter,
	logger *zerolog.Logger,
) error {
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow() {
			if err := writeError(ctx, conn, &proto.Error{Code: "rate_limited", Msg: "too many messages"}); err != nil {
				return err
			}
			continue
		}

		action, protoErr := inboundToAction(inbound)
		if protoErr != nil {
			if err := writeError(ctx, conn, protoErr); err != nil {
				return err
			}
			continue
		}

		switch action.kind {
		case actionHello:
			if err := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeEvent,
				Event: proto.EventHello,
				Data: proto.EventHelloData{
					Protocol: proto.ProtocolVersion,
					Kind:     string(session.Kind),
					Identity: session.Identity,
				},
			}); err != nil {
				return err
			}
		case actionJoin, actionSwitch:
			join := h.registry.Join
			if action.kind == actionSwitch {
				join = h.registry.SwitchRoom
			}
			// The registry queues the subscribed ack itself, ahead of any room message.
			if err := join(session.ID, action.chatID); err != nil {
				h.notifyError(session, err, logger)
			}
		case actionLeave:
			h.registry.LeaveAll(session.ID)
			h.notify(session, &core.Event{Kind: core.EventUnsubscribed}, logger)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session, logger *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-session.Events():
			if !ok {
				return errSessionClosed
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				logger.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// notify routes acknowledgements through the session outbox so they stay ordered with room messages.
// A full outbox evicts the session, which ends the write loop.
func (h *WSHandler) notify(session *core.Session, event *core.Event, logger *zerolog.Logger) {
	if !h.registry.Notify(session.ID, event) {
		logger.Warn().Msg("session outbox unavailable, session closed")
	}
}

func (h *WSHandler) notifyError(session *core.Session, err error, logger *zerolog.Logger) {
	ce, ok := core.AsCoreError(err)
	if !ok {
		logger.Error().Err(err).Msg("unexpected registry error")
		ce = &core.CoreError{Code: "internal_error", Message: "internal server error", Err: err}
	}
	h.notify(session, &core.Event{Kind: core.EventError, Error: ce}, logger)
}

func writeError(ctx context.Context, conn *websocket.Conn, protoErr *proto.Error) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: protoErr,
	})
}
