package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthConfig gates the /jobs routes.
type AuthConfig struct {
	Secret               string
	TrustedInvokerHeader string // request header that a trusted scheduler sets to "true"
}

// RequireInvoker accepts X-Cron-Secret, a bearer token equal to the secret,
// or the trusted invoker header.
func RequireInvoker(cfg AuthConfig, logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.TrustedInvokerHeader != "" && strings.EqualFold(c.GetHeader(cfg.TrustedInvokerHeader), "true") {
			c.Next()
			return
		}
		if cfg.Secret != "" {
			provided := c.GetHeader("X-Cron-Secret")
			if provided == "" {
				provided = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.Secret)) == 1 {
				c.Next()
				return
			}
		}
		logger.WithFields(logrus.Fields{"path": c.Request.URL.Path, "remote": c.ClientIP()}).Warn("Rejected unauthenticated job trigger")
		respondError(c, http.StatusUnauthorized, "unauthorized")
	}
}

// requestLogger logs one line per request, skipping health checks.
func requestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"run_id":   c.GetHeader("X-Run-ID"),
		}).Info("Request handled")
	}
}

// NewRouter builds the gin engine with all routes.
func NewRouter(h *Handler, auth AuthConfig, logger *logrus.Entry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", h.Healthz)

	jobs := r.Group("/jobs", RequireInvoker(auth, logger))
	{
		jobs.POST("/periods/generate", h.GeneratePeriod)
		jobs.PUT("/periods/:id/settings", h.PutSettings)
		jobs.POST("/periods/:id/settings/recompute", h.RecomputeSettings)
		jobs.POST("/reminders/tick", h.Tick)
		jobs.POST("/reminders/mark-sent", h.MarkSent)
		jobs.GET("/status", h.Status)
	}
	return r
}
