package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/internal/metrics"
	"github.com/ytget/twitvid/shortcode"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// UserCookie identifies an anonymous user across requests.
	UserCookie = "twitvid_uid"

	userPrefix     = "anon_"
	userSuffixLen  = 13
	userCookieAge  = 365 * 24 * 60 * 60
	ctxKeyUser     = "twitvid.user"
	ctxKeyReqID    = "twitvid.request_id"
	unmatchedRoute = "unmatched"
)

func recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		log.Error("panic recovered", logger.Fields{
			"request_id": c.GetString(ctxKeyReqID),
			"path":       c.Request.URL.Path,
			"panic":      rec,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxKeyReqID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := logger.Fields{
			"request_id": c.GetString(ctxKeyReqID),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"bytes":      c.Writer.Size(),
			"elapsed":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("request", fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("request", fields)
		default:
			log.Info("request", fields)
		}
	}
}

func instrument(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		m.HTTPDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
		m.HTTPRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// anonUser makes sure every request carries a stable anonymous user id.
func anonUser(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(UserCookie)
		if err != nil || !validUserID(id) {
			suffix, gerr := shortcode.RandomString(userSuffixLen)
			if gerr != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				return
			}
			id = userPrefix + suffix
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(UserCookie, id, userCookieAge, "/", "", secure, true)
		}
		c.Set(ctxKeyUser, id)
		c.Next()
	}
}

func validUserID(id string) bool {
	if !strings.HasPrefix(id, userPrefix) || len(id) != len(userPrefix)+userSuffixLen {
		return false
	}
	for _, r := range id[len(userPrefix):] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			return false
		}
	}
	return true
}

func userID(c *gin.Context) string { return c.GetString(ctxKeyUser) }
