package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chat-sync-service/internal/presence"
	"chat-sync-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints. Callers mount them
// behind authentication.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, store presence.Store, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", uuid.NewString(), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/presence/:user_id", func(c *gin.Context) {
		status, err := store.Status(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "status": status})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "status": status})
	})
}
