package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"urlitrim/internal/core"
	"urlitrim/internal/http/middleware"
)

// writeError maps service errors to HTTP responses. Expired and exhausted
// links were already folded into core.ErrNotFound by the service, so a
// prober cannot tell them from codes that never existed. Anything
// unexpected is logged and reported, and the caller only sees a generic
// message.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case core.IsInvalidInput(err):
		jsonError(c, http.StatusBadRequest, err.Error())
	case core.IsConflict(err):
		jsonError(c, http.StatusConflict, "Short code already in use")
	case core.IsNotFound(err):
		jsonError(c, http.StatusNotFound, "Link not found")
	case errors.Is(err, core.ErrUnauthorized):
		jsonError(c, http.StatusUnauthorized, "Invalid password")
	case errors.Is(err, core.ErrRateLimited):
		jsonError(c, http.StatusTooManyRequests, "Too many requests. Please try again later.")
	case errors.Is(err, core.ErrCodeGenerationExhausted):
		h.report(c, err)
		jsonError(c, http.StatusInternalServerError, "Failed to generate unique short code")
	default:
		h.report(c, err)
		jsonError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handlers) report(c *gin.Context, err error) {
	h.logger.ErrorContext(c.Request.Context(), "request failed",
		"route", c.FullPath(), "err", err)
	middleware.CaptureError(c, err)
}

func jsonError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
