package router

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers health check endpoints
func (r *Router) setupHealthRoutes() {
	healthHandler := r.Container.Health.Handler()

	// Register both health endpoint paths for compatibility
	r.Engine.GET("/health", healthHandler)
	r.Engine.GET("/api/health", healthHandler)
	r.Engine.GET("/api/status", r.statusHandler)
}

// statusHandler reports runtime details for operators
func (r *Router) statusHandler(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	facilitator := gin.H{"enabled": false}
	if f := r.Container.Facilitator; f != nil {
		facilitator = gin.H{
			"enabled": true,
			"circuit": f.State(),
			"id":      r.Config.Facilitator.ID,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   os.Getenv("APP_VERSION"),
		"env":       r.Config.Server.Env,
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(startTime).Round(time.Second).String(),
		"components": gin.H{
			"websocket": gin.H{
				"active_connections": r.Hub.ActiveConnections(),
			},
			"facilitator": facilitator,
			"threshold":   r.Config.Facilitator.Threshold,
		},
		"memory": gin.H{
			"alloc_mb":  memStats.Alloc / 1024 / 1024,
			"sys_mb":    memStats.Sys / 1024 / 1024,
			"gc_cycles": memStats.NumGC,
		},
	})
}
