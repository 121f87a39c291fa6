package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"urlitrim/internal/core"
	"urlitrim/internal/http/middleware"
	"urlitrim/internal/rate"
)

type Options struct {
	BaseURL       string
	CountryHeader string // edge header with the visitor's ISO country code
	CronSecret    string // bearer token for GET /api/cleanup; empty leaves it open
	Health        Pinger
	Logger        *slog.Logger

	// Used for POST /api/shorten only. A nil limiter or RateLimit <= 0
	// disables throttling.
	RateLimiter rate.Limiter
	RateLimit   int
	RateWindow  time.Duration
}

// NewRouter sets up all routes and middleware.
func NewRouter(svc *core.Service, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	r := gin.New()
	// Treat all upstreams as untrusted; client keys come from ClientKey.
	if err := r.SetTrustedProxies(nil); err != nil {
		opts.Logger.Warn("SetTrustedProxies", "err", err)
	}

	r.Use(middleware.Logger(opts.Logger))
	r.Use(middleware.Sentry())
	r.Use(middleware.Recover(opts.Logger))

	h := NewHandlers(svc, opts)

	r.GET("/health", h.Health)

	// Landing page and gate templates (inline HTML)
	RegisterStatic(r)

	api := r.Group("/api")
	if opts.RateLimiter != nil && opts.RateLimit > 0 {
		api.POST("/shorten", middleware.RateLimit(opts.RateLimiter, opts.RateLimit, opts.RateWindow, opts.Logger), h.Shorten)
	} else {
		api.POST("/shorten", h.Shorten)
	}
	api.GET("/links/:code", h.Metadata)
	api.POST("/links/:code/verify", h.Verify)
	api.POST("/links/:code/click", h.Click)
	api.GET("/links/:code/stats", h.LinkStats)
	api.POST("/stats/personal", h.PersonalStats)
	api.GET("/cleanup", h.Cleanup)

	// Redirect; an optional readable slug may follow the code.
	r.GET("/:code", h.Redirect)
	r.GET("/:code/*slug", h.Redirect)

	return r
}
