package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiredesk/internal/app"
	"github.com/vovakirdan/wiredesk/internal/auth"
	"github.com/vovakirdan/wiredesk/internal/config"
	applog "github.com/vovakirdan/wiredesk/internal/log"
	"github.com/vovakirdan/wiredesk/internal/service/desk"
	"github.com/vovakirdan/wiredesk/internal/store"
	"github.com/vovakirdan/wiredesk/internal/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "wiredesk",
		Short:         "Customer-support chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().StringVar(&opts.overrides.DatabasePath, "db", "", "SQLite database path")
	root.PersistentFlags().StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newAgentCmd(opts),
		newCannedCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (config.Config, *zerolog.Logger, error) {
	bootLogger := applog.New("info", true)

	cfg, path, err := config.Load(bootLogger, o.configPath)
	if err != nil {
		return cfg, nil, err
	}
	cfg.UpdateFrom(o.overrides)

	logger := applog.New(cfg.LogLevel, cfg.LogPretty)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Addr).Msg("starting wiredesk server")
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	cmd.Flags().DurationVar(&opts.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	cmd.Flags().StringVar(&opts.overrides.RedisAddr, "redis-addr", "", "Redis address for lifecycle events")
	return cmd
}

// withDesk opens the configured store for a one-shot administrative command.
func withDesk(opts *rootOptions, fn func(ctx context.Context, cfg config.Config, st store.Store, svc *desk.Service) error) error {
	cfg, _, err := opts.load()
	if err != nil {
		return err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	return fn(context.Background(), cfg, st, desk.New(st))
}

func newAgentCmd(opts *rootOptions) *cobra.Command {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Manage support agents",
	}

	var id string
	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Register a support agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(opts, func(ctx context.Context, _ config.Config, _ store.Store, svc *desk.Service) error {
				created, err := svc.CreateAgent(ctx, id, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", created.ID, created.Email)
				return nil
			})
		},
	}
	create.Flags().StringVar(&id, "id", "", "agent id (generated when empty)")

	agent.AddCommand(create)
	return agent
}

func newCannedCmd(opts *rootOptions) *cobra.Command {
	canned := &cobra.Command{
		Use:   "canned",
		Short: "Manage canned replies",
	}

	create := &cobra.Command{
		Use:   "create <title> <content>",
		Short: "Store a canned reply template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDesk(opts, func(ctx context.Context, _ config.Config, _ store.Store, svc *desk.Service) error {
				created, err := svc.CreateCannedMessage(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", created.ID, created.Title)
				return nil
			})
		},
	}

	canned.AddCommand(create)
	return canned
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Mint a signed token for an agent or user",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := ""
			if len(args) == 1 {
				subject = args[0]
			}
			return withDesk(opts, func(ctx context.Context, cfg config.Config, st store.Store, _ *desk.Service) error {
				svc := auth.NewService(st, &auth.JWTConfig{
					Secret:   []byte(cfg.JWTSecret),
					Issuer:   cfg.JWTIssuer,
					Audience: cfg.JWTAudience,
					TTL:      cfg.JWTTTL,
				})
				token, issuedTo, err := svc.IssueToken(ctx, store.SenderType(kind), subject)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", issuedTo, token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(store.SenderAgent), "identity kind: agent or user")
	return cmd
}
