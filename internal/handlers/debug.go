package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints. They bypass auth and must
// stay disabled outside development.
func RegisterDebugRoutes(router *gin.Engine, registry *ws.Registry, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/online", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": registry.OnlineIDs()})
	})
}
