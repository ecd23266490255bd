package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/streamsafe/backend/internal/config"
	"github.com/streamsafe/backend/internal/db"
	"github.com/streamsafe/backend/internal/handlers"
	"github.com/streamsafe/backend/internal/httpserver"
	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

// Run bootstraps the streamsafe backend. args[0] selects serve, migrate or promote.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or promote")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "promote":
		if len(args) < 2 || strings.TrimSpace(args[1]) == "" {
			return errors.New("expected email of the account to promote")
		}
		return promote(ctx, strings.TrimSpace(args[1]))
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}

	srv := httpserver.New(httpserver.Options{
		Port:         cfg.AppPort,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, handlers.NewRouter(deps))

	logger.Info("starting http server", "addr", srv.Addr(), "allowedOrigins", cfg.AllowedOrigins)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
		runErr = errors.Join(runErr, err)
	}
	if err := cleanup(shutdownCtx); err != nil {
		logger.Warn("analysis runs still in flight at exit", "error", err)
	}

	return runErr
}

// promote grants the admin role. Registration never does, so this is the
// only way an account becomes an admin.
func promote(ctx context.Context, email string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := repositories.NewPostgresUserRepository(pool)
	if err := users.SetRole(ctx, email, models.RoleAdmin); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("no account registered as %q", email)
		}
		return err
	}

	logger.Info("account promoted", "email", email, "role", models.RoleAdmin)
	return nil
}
