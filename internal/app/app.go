package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"urlitrim/internal/config"
	"urlitrim/internal/core"
	httpapi "urlitrim/internal/http"
	"urlitrim/internal/id"
	"urlitrim/internal/rate"
	"urlitrim/internal/secret"
	"urlitrim/internal/store"
	"urlitrim/internal/store/sqlite"
)

const shutdownTimeout = 10 * time.Second

// App wires config, storage, core service, rate limiter, and the HTTP router.
type App struct {
	Cfg     config.Config
	Store   store.Store
	Service *core.Service
	Limiter rate.Limiter
	Router  *gin.Engine

	logger   *slog.Logger
	memLimit *rate.Memory // set when limits are process-local
	redis    *redis.Client
	sentryOn bool

	stopCleanup chan struct{}
	cleanupDone sync.WaitGroup
	closeOnce   sync.Once
}

// New builds a fully-wired application instance.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Cfg: cfg, logger: logger, stopCleanup: make(chan struct{})}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnv,
		}); err != nil {
			return nil, fmt.Errorf("sentry init: %w", err)
		}
		a.sentryOn = true
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Open SQLite store (creates DB file and migrates the schema).
	st, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	a.Store = st

	a.Service = core.NewService(st, id.NewGenerator(cfg.CodeLength), core.Options{
		Hasher:      secret.NewHasher(secret.DefaultParams),
		Location:    loc,
		ClickPolicy: core.ClickPolicy(cfg.ClickPolicy),
	})

	if cfg.RateLimit > 0 {
		if err := a.initLimiter(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	a.Router = httpapi.NewRouter(a.Service, httpapi.Options{
		BaseURL:       cfg.BaseURL,
		CountryHeader: cfg.CountryHeader,
		CronSecret:    cfg.CronSecret,
		Health:        st,
		Logger:        logger,
		RateLimiter:   a.Limiter,
		RateLimit:     cfg.RateLimit,
		RateWindow:    cfg.RateWindow,
	})

	if cfg.CleanupInterval > 0 {
		a.startCleanup(cfg.CleanupInterval)
	}
	return a, nil
}

// initLimiter prefers Redis so limits hold across instances, and falls
// back to a process-local table with its own sweep.
func (a *App) initLimiter(ctx context.Context) error {
	if a.Cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.Cfg.RedisAddr,
			Password: a.Cfg.RedisPassword,
			DB:       a.Cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping %s: %w", a.Cfg.RedisAddr, err)
		}
		a.redis = client
		a.Limiter = rate.NewRedis(client, "urlitrim:ratelimit:")
		a.logger.Info("rate limiter", "backend", "redis", "addr", a.Cfg.RedisAddr)
		return nil
	}
	m := rate.NewMemory()
	m.Start()
	a.memLimit = m
	a.Limiter = m
	a.logger.Info("rate limiter", "backend", "memory")
	return nil
}

func (a *App) startCleanup(every time.Duration) {
	a.cleanupDone.Add(1)
	go func() {
		defer a.cleanupDone.Done()
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				a.RunCleanup(context.Background())
			case <-a.stopCleanup:
				return
			}
		}
	}()
}

// RunCleanup deletes expired links once and logs the outcome.
func (a *App) RunCleanup(ctx context.Context) {
	n, err := a.Service.CleanupExpired(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "cleanup failed", "err", err)
		if a.sentryOn {
			sentry.CaptureException(err)
		}
		return
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "expired links deleted", "deleted", n)
	}
}

// Addr returns the HTTP listen address, e.g. ":8080".
func (a *App) Addr() string {
	return fmt.Sprintf(":%d", a.Cfg.Port)
}

// Start serves HTTP until ctx is cancelled, then shuts the server down
// gracefully.
func (a *App) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Addr(),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// Close stops background work and releases resources. Safe to call twice.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		close(a.stopCleanup)
		a.cleanupDone.Wait()
		if a.memLimit != nil {
			a.memLimit.Stop()
			a.memLimit.Wait()
		}
		if a.redis != nil {
			errs = append(errs, a.redis.Close())
		}
		errs = append(errs, a.Store.Close())
		if a.sentryOn {
			sentry.Flush(2 * time.Second)
		}
	})
	return errors.Join(errs...)
}
