package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// Recover turns a panic into a 500, logging it and reporting it to Sentry.
func Recover(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		logger.ErrorContext(c.Request.Context(), "panic recovered",
			"panic", fmt.Sprint(rec), "path", c.Request.URL.Path)
		if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
			hub.RecoverWithContext(c.Request.Context(), rec)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}
