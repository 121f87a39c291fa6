package middleware

import (
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// Sentry gives each request its own hub, scoped to that request, so
// handlers can report errors with request context attached. Without a
// configured client the hub is inert.
func Sentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		hub.Scope().SetTag("route", c.FullPath())
		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))
		c.Next()
	}
}

// CaptureError reports err on the request's hub, if there is one.
func CaptureError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	if hub := sentry.GetHubFromContext(c.Request.Context()); hub != nil {
		hub.CaptureException(err)
	}
}
