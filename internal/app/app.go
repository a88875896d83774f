package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wiredesk/internal/auth"
	"github.com/vovakirdan/wiredesk/internal/config"
	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/events"
	"github.com/vovakirdan/wiredesk/internal/service/desk"
	"github.com/vovakirdan/wiredesk/internal/store"
	"github.com/vovakirdan/wiredesk/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wiredesk/internal/transport/http"
)

// App wires together store, core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	registry        *core.Registry
	events          events.Publisher
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	publisher, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if cfg.UsesDefaultJWTSecret() {
		logger.Warn().Msg("jwt_secret is the default placeholder; set a real secret before exposing the server")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	registry := core.NewRegistry(logger)
	assignment := core.NewAssignmentService(st, st, publisher, cfg.OperationTimeout, logger)
	pipeline := core.NewPipeline(st, assignment, core.NewBroadcaster(registry, logger), cfg.OperationTimeout, logger)

	server := transporthttp.NewServer(transporthttp.Services{
		Pipeline:   pipeline,
		Assignment: assignment,
		Registry:   registry,
		Desk:       desk.New(st),
		Auth:       auth.NewService(st, jwtConfig),
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		registry:        registry,
		events:          publisher,
		store:           st,
		log:             logger,
	}, nil
}

func newEventPublisher(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (events.Publisher, error) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("lifecycle events disabled (no redis_addr)")
		return events.Nop{}, nil
	}

	publisher, err := events.NewRedisPublisher(ctx, events.RedisConfig{
		Address:  cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.RedisChannel,
	})
	if err != nil {
		return nil, fmt.Errorf("init event publisher: %w", err)
	}
	logger.Info().Str("redis_addr", cfg.RedisAddr).Str("channel", cfg.RedisChannel).Msg("lifecycle events enabled")
	return publisher, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Close sessions first so websocket handlers return and Shutdown can drain.
		a.registry.Close()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// cleanup closes the event sink and database.
func (a *App) cleanup() {
	if err := a.events.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close event publisher")
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close store")
	} else {
		a.log.Info().Msg("store closed")
	}
}
