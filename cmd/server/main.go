package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"chatcore/internal/cache"
	"chatcore/internal/config"
	"chatcore/internal/httpserver"
	"chatcore/internal/metrics"
	"chatcore/internal/security"
	"chatcore/internal/service"
	"chatcore/internal/store/postgres"
	"chatcore/internal/store/sqlite"
	"chatcore/internal/store/sqlstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "chatcore",
		Usage: "Multi-user conversation backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Sources: cli.EnvVars("LOG_LEVEL"),
				Usage:   "Log level (debug|info|warn|error)",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, logger)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the database schema",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			// Opening a store always runs the idempotent migrations.
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			logger.Info("migrations completed", "db", cfg.DBKind)
			return nil
		},
	}
}

func setup(cmd *cli.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          cfg.AppName,
	})
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger.SetLevel(level)
	log.SetDefault(logger)
	return cfg, logger, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.DBKind {
	case "postgres":
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return sqlite.New(ctx, cfg.SQLitePath)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	views, err := cache.New(ctx, cfg.CacheType, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer views.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rt := service.Runtime{
		Store: service.StorePolicy{
			Timeout: cfg.StoreTimeout,
			Retries: cfg.StoreRetries,
		},
		Metrics: metrics.New(reg),
		Logger:  logger,
	}

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	passwordHasher := security.NewPasswordHasher(0)

	access := service.NewAccessController(st.Conversations(), rt)
	notify := service.NewNotificationService(st.Conversations(), st.Notifications(), rt)
	users := service.NewUserService(st.Users(), rt)

	deps := httpserver.Deps{
		CORSOrigins:   cfg.CORSOrigins,
		Tokens:        tokenSvc,
		Logger:        logger,
		Auth:          service.NewAuthService(st.Users(), tokenSvc, passwordHasher, rt),
		Users:         users,
		Conversations: service.NewConversationService(st.Users(), st.Conversations(), access, rt),
		Messages:      service.NewMessageService(st.Users(), st.Conversations(), st.Messages(), access, notify, rt),
		Notifications: notify,
		Threads:       service.NewThreadService(st.Messages(), access, rt),
		Query:         service.NewQueryService(st.Conversations(), st.Messages(), access, views, cfg.ConversationViewTTL, rt),
	}
	if cfg.MetricsEnabled {
		deps.Gatherer = reg
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      httpserver.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr(), "db", cfg.DBKind, "cache", cfg.CacheType)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
