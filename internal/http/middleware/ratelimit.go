package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"urlitrim/internal/rate"
)

// UnknownClient is the key shared by requests with no usable address.
const UnknownClient = "unknown"

// RateLimit enforces a fixed window of limit requests per client for the
// current route. If the limiter itself fails the request is let through.
func RateLimit(lim rate.Limiter, limit int, window time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := ClientKey(c.Request)

		res, err := lim.Check(ctx, key, limit, window)
		if err != nil {
			logger.WarnContext(ctx, "rate limiter unavailable", "err", err)
			CaptureError(c, err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			retry := res.RetryAfter(time.Now())
			c.Header("Retry-After", strconv.Itoa(int(retry/time.Second)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests. Please try again later.",
				"retryAfter": int(retry / time.Second),
			})
			return
		}
		c.Next()
	}
}

// ClientKey identifies the caller: the first X-Forwarded-For entry, then
// the peer address, then UnknownClient.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return UnknownClient
}
