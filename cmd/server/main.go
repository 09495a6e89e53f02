// notes-api server entry point.
//
// Usage:
//
//	notes-api [--addr :8080] [--store mongo|surreal|sqlite] [--test] [--env-file .env]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/notes-api/internal/api"
	"github.com/kuitang/notes-api/internal/config"
	"github.com/kuitang/notes-api/internal/db"
	"github.com/kuitang/notes-api/internal/notes"
	"github.com/kuitang/notes-api/internal/obs"
	"github.com/kuitang/notes-api/internal/ratelimit"
	"github.com/kuitang/notes-api/internal/store/mongostore"
	"github.com/kuitang/notes-api/internal/store/surrealstore"
)

// storeOpenTimeout bounds connecting to the store at startup.
const storeOpenTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "notes-api: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	if err := config.LoadDotEnv(flags.EnvFile); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		return err
	}

	obs.Init()
	logger := obs.Pkg("main")
	cfg.PrintStartupSummary(stderr)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("store_close_failed", "error", err)
		}
	}()

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimitConfig.Enabled() {
		limiter = ratelimit.NewRateLimiter(cfg.RateLimitConfig)
		defer limiter.Stop()
	}

	svc := notes.NewService(store, cfg.StoreTimeout)
	server := &http.Server{
		Handler:           newHandler(svc, cfg.MaxBodyBytes, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	logger.Info("server_listening", "addr", ln.Addr().String(), "store", cfg.Backend)
	return serve(ctx, server, ln, cfg.ShutdownTimeout)
}

// openStore connects the configured backend and verifies it answers.
func openStore(ctx context.Context, cfg *config.Config) (notes.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
	defer cancel()

	switch cfg.Backend {
	case config.BackendMongo:
		return mongostore.Open(ctx, mongostore.Options{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
		})
	case config.BackendSurreal:
		return surrealstore.Open(ctx, surrealstore.Options{
			URL:       cfg.SurrealURL,
			Namespace: cfg.SurrealNamespace,
			Database:  cfg.SurrealDatabase,
			Username:  cfg.SurrealUser,
			Password:  cfg.SurrealPass,
		})
	case config.BackendSQLite:
		return db.Open(ctx, db.Options{
			Path: cfg.SQLitePath,
			Name: "notes",
			Key:  cfg.SQLiteKey,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// newHandler builds the routed API behind the middleware chain. A nil
// limiter disables rate limiting.
func newHandler(svc *notes.Service, maxBodyBytes int64, limiter *ratelimit.RateLimiter) http.Handler {
	mux := http.NewServeMux()
	api.NewHandler(svc, maxBodyBytes).RegisterRoutes(mux)

	var h http.Handler = mux
	if limiter != nil {
		h = ratelimit.RateLimitMiddleware(limiter, ratelimit.ClientIP)(h)
	}
	h = obs.RecoverMiddleware(h)
	h = obs.AccessLogMiddleware("http", h)
	return obs.RequestContextMiddleware(h)
}

// serve runs server on ln until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func serve(ctx context.Context, server *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	logger := obs.Pkg("main")

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("server_shutdown", "timeout", shutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-serverErr:
		return err
	}
}
