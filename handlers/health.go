package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillpad/quillpad/pkg/logger"
)

// ReadyCheck reports whether one dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// RegisterHealth mounts /health (liveness) and /ready, which returns 200
// only when every check passes.
func RegisterHealth(r gin.IRouter, checks map[string]ReadyCheck, started time.Time) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err := check(ctx)
			cancel()
			deps[name] = err == nil
			if err != nil {
				logger.Warnf("readiness %s: %v", name, err)
				ready = false
			}
		}
		uptime := time.Since(started).Round(time.Second).String()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": uptime})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": uptime})
	})
}
