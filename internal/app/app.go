package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashplayer/backend/internal/config"
	"github.com/ashplayer/backend/internal/db"
	"github.com/ashplayer/backend/internal/handlers"
	"github.com/ashplayer/backend/internal/httpserver"
	"github.com/ashplayer/backend/internal/identity"
	"github.com/ashplayer/backend/internal/middleware"
)

const devTokenTTL = time.Hour

// Run bootstraps the Ash Player backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or token")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "token":
		return runToken(ctx, args[1:], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: level}))
}

// authConfig lists the routes that skip the registration check or
// authentication altogether.
func authConfig() middleware.AuthConfig {
	return middleware.AuthConfig{
		Public:       []middleware.Route{{Method: http.MethodGet, Path: handlers.RouteHealth}},
		Unregistered: []middleware.Route{{Method: http.MethodPost, Path: handlers.RouteUserRegister}},
	}
}

// newHandler assembles the routed and authenticated HTTP handler.
func newHandler(deps dependencies, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps.Handlers)

	authed := middleware.Authenticate(deps.Verifier, deps.Users, authConfig())(mux)
	return middleware.RequestLogger(logger)(authed)
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	secrets, err := newSecretResolver(ctx, cfg)
	if err != nil {
		return err
	}

	deps := buildDependencies(store, secrets, cfg, logger)

	resumed, err := deps.Retrier.ResumePending(ctx, deps.Accounts)
	if err != nil {
		logger.Error("resume pending deletions", "error", err)
	} else if resumed > 0 {
		logger.Info("resumed pending deletions", "count", resumed)
	}

	srv := httpserver.New(cfg.AppPort, newHandler(deps, logger))

	logger.Info("starting http server", "port", cfg.AppPort, "store", cfg.StoreBackend)

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

	if err := httpserver.GracefulStop(srv, deps.Shutdown); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func runMigrations(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	command := "up"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "up", "status":
		return db.Migrate(ctx, cfg.DatabaseURL, command)
	case "down":
		return errors.New("down migrations are not supported yet")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// runToken prints a signed development token for uid using the configured
// verification key.
func runToken(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("expected uid [email]")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	secrets, err := newSecretResolver(ctx, cfg)
	if err != nil {
		return err
	}
	key, err := secrets.GetSecret(ctx, cfg.Identity.SecretParam)
	if err != nil {
		return fmt.Errorf("resolve signing key: %w", err)
	}

	id := identity.Identity{UID: args[0], Provider: "password"}
	if len(args) > 1 {
		id.Email = args[1]
	}

	token, err := identity.Sign([]byte(key), id, time.Now(), devTokenTTL, cfg.Identity.Issuer, cfg.Identity.Audience)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
