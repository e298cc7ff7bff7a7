package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/internal/services"
	"github.com/huangang/teamsync/pkg/logger"
	"github.com/rs/zerolog"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 1 << 20
)

// SyncHandler upgrades dashboard clients to a WebSocket and bridges frames
// to the event router.
type SyncHandler struct {
	router   *services.EventRouter
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewSyncHandler(router *services.EventRouter) *SyncHandler {
	return &SyncHandler{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logger.With("ws"),
	}
}

// Serve handles GET /ws. The first frame a client receives is state:initial.
func (h *SyncHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	channelID := uuid.NewString()
	queue := h.router.Connect(channelID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(conn, channelID, queue)
	}()

	h.readLoop(conn, channelID)
	h.router.Handle(channelID, &protocol.Disconnect{})
	<-done
}

func (h *SyncHandler) readLoop(conn *websocket.Conn, channelID string) {
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("channel", channelID).Msg("read failed")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		ev, err := protocol.DecodeInbound(data)
		if errors.Is(err, protocol.ErrUnknownEvent) {
			h.log.Debug().Err(err).Str("channel", channelID).Msg("frame dropped")
			continue
		}
		if err != nil {
			h.log.Warn().Err(err).Str("channel", channelID).Msg("frame dropped")
			continue
		}
		h.router.Handle(channelID, ev)
	}
}

// writeLoop drains the channel's queue. The hub closes the queue when the
// channel is dropped, which ends the connection.
func (h *SyncHandler) writeLoop(conn *websocket.Conn, channelID string, queue <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame, ok := <-queue:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug().Err(err).Str("channel", channelID).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
