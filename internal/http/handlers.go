package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"urlitrim/internal/analytics"
	"urlitrim/internal/core"
	"urlitrim/internal/http/middleware"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	svc           *core.Service
	baseURL       string
	countryHeader string
	cronSecret    string
	health        Pinger
	logger        *slog.Logger
}

func NewHandlers(svc *core.Service, opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		svc:           svc,
		baseURL:       opts.BaseURL,
		countryHeader: opts.CountryHeader,
		cronSecret:    opts.CronSecret,
		health:        opts.Health,
		logger:        logger,
	}
}

// ---- payloads ----

type shortenRequest struct {
	URL         string     `json:"url"`
	Custom      string     `json:"custom"`
	TTL         *int       `json:"ttl"` // days; null never expires
	ExpiresAt   *time.Time `json:"expiresAt"`
	Password    string     `json:"password"`
	OneTime     bool       `json:"oneTime"`
	MaxClicks   *int64     `json:"maxClicks"`
	ShowPreview bool       `json:"showPreview"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type personalStatsRequest struct {
	ShortCodes []string `json:"shortCodes"`
}

type linkResponse struct {
	ShortCode   string     `json:"shortCode"`
	ShortURL    string     `json:"shortUrl"`
	OriginalURL string     `json:"originalUrl,omitempty"`
	Clicks      int64      `json:"clicks"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	MaxClicks   *int64     `json:"maxClicks"`
	HasPassword bool       `json:"hasPassword"`
	ShowPreview bool       `json:"showPreview"`
}

type linkStatsResponse struct {
	linkResponse
	analytics.LinkReport
}

// describe renders l for API callers. The destination of a protected
// link stays hidden until the password has been verified.
func (h *Handlers) describe(l *core.Link) linkResponse {
	out := linkResponse{
		ShortCode:   l.ShortCode,
		ShortURL:    h.shortURL(l.ShortCode),
		Clicks:      l.Clicks,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
		MaxClicks:   l.MaxClicks,
		HasPassword: l.HasPassword(),
		ShowPreview: l.ShowPreview,
	}
	if !l.HasPassword() {
		out.OriginalURL = l.OriginalURL
	}
	return out
}

func (h *Handlers) shortURL(code string) string { return h.baseURL + "/" + code }

func (h *Handlers) visitor(c *gin.Context) core.Visitor {
	v := core.Visitor{
		Referrer:  c.GetHeader("Referer"),
		UserAgent: c.GetHeader("User-Agent"),
	}
	if h.countryHeader != "" {
		v.Country = c.GetHeader(h.countryHeader)
	}
	return v
}

// ---- endpoints ----

func (h *Handlers) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health.Ping(c.Request.Context()); err != nil {
			h.logger.WarnContext(c.Request.Context(), "health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) Shorten(c *gin.Context) {
	var in shortenRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(in.URL) == "" {
		jsonError(c, http.StatusBadRequest, "URL is required")
		return
	}
	rec, err := h.svc.Shorten(c.Request.Context(), core.CreateRequest{
		URL:         in.URL,
		Custom:      in.Custom,
		ExpiresAt:   in.ExpiresAt,
		TTLDays:     in.TTL,
		Password:    in.Password,
		OneTime:     in.OneTime,
		MaxClicks:   in.MaxClicks,
		ShowPreview: in.ShowPreview,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := h.describe(rec)
	// The creator already knows where the link goes.
	out.OriginalURL = rec.OriginalURL
	c.JSON(http.StatusCreated, out)
}

func (h *Handlers) Metadata(c *gin.Context) {
	rec, err := h.svc.Metadata(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.describe(rec))
}

func (h *Handlers) Verify(c *gin.Context) {
	var in passwordRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if in.Password == "" {
		jsonError(c, http.StatusBadRequest, "Password is required")
		return
	}
	rec, err := h.svc.Verify(c.Request.Context(), c.Param("code"), in.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "originalUrl": rec.OriginalURL})
}

// Click records a visit that went through a gate page. The body is
// optional; protected links need {"password": ...}.
func (h *Handlers) Click(c *gin.Context) {
	var in passwordRequest
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		jsonError(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	rec, err := h.svc.ReportClick(c.Request.Context(), c.Param("code"), in.Password, h.visitor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "originalUrl": rec.OriginalURL})
}

func (h *Handlers) LinkStats(c *gin.Context) {
	rec, report, err := h.svc.LinkStats(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, linkStatsResponse{linkResponse: h.describe(rec), LinkReport: report})
}

func (h *Handlers) PersonalStats(c *gin.Context) {
	var in personalStatsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		jsonError(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	report, err := h.svc.PersonalStats(c.Request.Context(), in.ShortCodes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Cleanup deletes expired links. When a cron secret is configured the
// caller must present it as a bearer token.
func (h *Handlers) Cleanup(c *gin.Context) {
	if h.cronSecret != "" {
		want := "Bearer " + h.cronSecret
		got := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			jsonError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
	}
	n, err := h.svc.CleanupExpired(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.InfoContext(c.Request.Context(), "expired links deleted", "deleted", n)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"deleted":   n,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Redirect follows a short link. Ungated links redirect straight away
// with the click already recorded; gated ones get an interstitial page.
// Any trailing slug after the code is ignored.
func (h *Handlers) Redirect(c *gin.Context) {
	ctx := c.Request.Context()
	visit, err := h.svc.Open(ctx, c.Param("code"), h.visitor(c))
	if err != nil {
		if core.IsNotFound(err) {
			c.HTML(http.StatusNotFound, notFoundTemplate, gin.H{"BaseURL": h.baseURL})
			return
		}
		h.report(c, err)
		c.HTML(http.StatusInternalServerError, errorTemplate, gin.H{"BaseURL": h.baseURL})
		return
	}
	if visit.ClickErr != nil {
		h.logger.WarnContext(ctx, "click not recorded",
			"code", visit.Link.ShortCode, "err", visit.ClickErr)
		middleware.CaptureError(c, visit.ClickErr)
	}

	c.Header("Cache-Control", "no-store")
	switch visit.State {
	case core.StateUnlocked:
		c.Redirect(http.StatusFound, visit.Link.OriginalURL)
	default:
		c.HTML(http.StatusOK, gateTemplate, h.gateData(visit))
	}
}

type gateData struct {
	ShortCode     string
	ShortURL      string
	OriginalURL   string
	NeedsPassword bool
	ShowPreview   bool
}

func (h *Handlers) gateData(v *core.Visit) gateData {
	d := gateData{
		ShortCode:     v.Link.ShortCode,
		ShortURL:      h.shortURL(v.Link.ShortCode),
		NeedsPassword: v.State == core.StatePasswordGated,
		ShowPreview:   v.Link.ShowPreview,
	}
	if !d.NeedsPassword {
		d.OriginalURL = v.Link.OriginalURL
	}
	return d
}
