package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/teamsync/internal/services"
)

// HealthHandler reports liveness and the state of the sync subsystems.
type HealthHandler struct {
	hub      *services.ChannelHub
	presence *services.SessionRegistry
	writer   services.SnapshotWriter
	driver   string
}

func NewHealthHandler(hub *services.ChannelHub, presence *services.SessionRegistry, writer services.SnapshotWriter, driver string) *HealthHandler {
	return &HealthHandler{hub: hub, presence: presence, writer: writer, driver: driver}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	persistMode := "inline"
	if h.writer != nil && h.writer.IsAsync() {
		persistMode = "async (Redis)"
	}

	c.JSON(200, gin.H{
		"status":  "healthy",
		"service": "teamsync",
		"components": gin.H{
			"storage":      h.driver,
			"persist_mode": persistMode,
			"channels":     h.hub.ClientCount(),
			"online_users": h.presence.Count(),
		},
	})
}
