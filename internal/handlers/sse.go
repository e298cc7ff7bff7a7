package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/internal/services"
	"github.com/huangang/teamsync/internal/utils"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/huangang/teamsync/pkg/response"
)

// SSEHandler streams the sync frames to read-only observers. Observers get
// the same state:initial first frame as WebSocket clients but cannot emit.
type SSEHandler struct {
	router *services.EventRouter
}

func NewSSEHandler(router *services.EventRouter) *SSEHandler {
	return &SSEHandler{router: router}
}

// StreamEvents handles GET /api/events
func (h *SSEHandler) StreamEvents(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}

	claims, err := utils.ParseToken(token)
	if err != nil {
		response.Unauthorized(c, "Invalid token")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	channelID := "sse_" + uuid.NewString()
	frames := h.router.Connect(channelID)
	defer h.router.Handle(channelID, &protocol.Disconnect{})

	logger.Info().Str("channel", channelID).Str("user", claims.UserID).Msg("SSE observer connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case frame, ok := <-frames:
			if !ok {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", frame)
			c.Writer.Flush()
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("channel", channelID).Msg("SSE observer disconnected")
			return false
		}
	})
}
