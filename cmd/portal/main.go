// Package main запускает HTTP-сервер портала рационной программы.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ration-portal/internal/backend"
	"github.com/mmeshcher/ration-portal/internal/cart"
	"github.com/mmeshcher/ration-portal/internal/config"
	"github.com/mmeshcher/ration-portal/internal/handler"
	"github.com/mmeshcher/ration-portal/internal/middleware"
	"github.com/mmeshcher/ration-portal/internal/model"
	"github.com/mmeshcher/ration-portal/internal/repository"
	"github.com/mmeshcher/ration-portal/internal/service"
	"github.com/mmeshcher/ration-portal/internal/session"
	"github.com/mmeshcher/ration-portal/internal/view"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
)

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// sessionStore выбирает хранилище сессий: Redis, PostgreSQL или память процесса.
// sweep удаляет истёкшие сессии там, где хранилище не делает этого само.
type sessionStore struct {
	session.Store
	io.Closer
	sweep func(ctx context.Context) (int64, error)
}

func openStore(ctx context.Context, cfg *config.Config) (*sessionStore, error) {
	switch {
	case cfg.RedisURL != "":
		store, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis session store: %w", err)
		}
		return &sessionStore{Store: store, Closer: store}, nil

	case cfg.DatabaseURI != "":
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return nil, fmt.Errorf("postgres session store: %w", err)
		}
		return &sessionStore{Store: repo, Closer: repo, sweep: repo.DeleteExpired}, nil

	default:
		mem := session.NewMemoryStore()
		return &sessionStore{
			Store:  mem,
			Closer: io.NopCloser(nil),
			sweep: func(context.Context) (int64, error) {
				return int64(mem.Sweep()), nil
			},
		}, nil
	}
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("application terminated with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	sessions := session.NewManager(store, cfg.SessionSecret, cfg.SessionTTL, cfg.CookieSecure)
	if cfg.SessionSecret == "" {
		logger.Warn("SESSION_SECRET is not set, sessions will not survive a restart")
	}

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger)
	carts := cart.NewRegistry(client, model.DefaultPolicy.HardCap, cfg.SessionTTL, logger)
	svc := service.NewService(client, carts, cfg.BackendPublicURL, logger)

	views, err := view.New(logger)
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	h := handler.NewHandler(svc, sessions, views, middleware.NewMetrics(), logger)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return carts.Run(ctx, sweepInterval)
	})

	if store.sweep != nil {
		g.Go(func() error {
			ticker := time.NewTicker(sweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					n, err := store.sweep(ctx)
					if err != nil {
						logger.Warn("sweep expired sessions failed", zap.Error(err))
						continue
					}
					if n > 0 {
						logger.Debug("expired sessions removed", zap.Int64("count", n))
					}
				}
			}
		})
	}

	g.Go(func() error {
		logger.Info("starting ration portal", zap.String("addr", cfg.RunAddress), zap.String("backend", cfg.BackendURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Остановка сервера по сигналу или ошибке в другой горутине.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}
