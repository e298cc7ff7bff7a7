package services

import (
	"sync"

	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/pkg/logger"
)

// Broadcaster delivers encoded server events to open channels.
type Broadcaster interface {
	Subscribe(channelID string) <-chan []byte
	Unsubscribe(channelID string)
	Send(channelID string, out protocol.Outbound)
	// Broadcast delivers to every channel except exclude. An empty exclude
	// reaches everyone.
	Broadcast(out protocol.Outbound, exclude string)
}

// ChannelHub fans encoded frames out to per-channel buffered queues. The
// transport drains each queue; a closed queue means the hub gave up on the
// channel and the transport must hang up.
type ChannelHub struct {
	clients map[string]chan []byte
	buffer  int
	mu      sync.RWMutex
}

func NewChannelHub(buffer int) *ChannelHub {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelHub{
		clients: make(map[string]chan []byte),
		buffer:  buffer,
	}
}

// Subscribe registers channelID and returns its outbound queue. A repeated
// id replaces and closes the previous queue.
func (h *ChannelHub) Subscribe(channelID string) <-chan []byte {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[channelID]; ok {
		close(old)
	}
	ch := make(chan []byte, h.buffer)
	h.clients[channelID] = ch
	return ch
}

func (h *ChannelHub) Unsubscribe(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(channelID)
}

func (h *ChannelHub) Send(channelID string, out protocol.Outbound) {
	frame, ok := encodeFrame(out)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[channelID]; ok {
		h.deliver(channelID, ch, frame)
	}
}

func (h *ChannelHub) Broadcast(out protocol.Outbound, exclude string) {
	frame, ok := encodeFrame(out)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.clients {
		if id == exclude {
			continue
		}
		h.deliver(id, ch, frame)
	}
}

// ClientCount returns the number of open channels.
func (h *ChannelHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// deliver never blocks. A full queue means the reader fell behind and would
// silently diverge, so the channel is closed instead. Caller holds h.mu.
func (h *ChannelHub) deliver(id string, ch chan []byte, frame []byte) {
	select {
	case ch <- frame:
	default:
		logger.Warn().Str("channel", id).Msg("client buffer full, disconnecting")
		h.drop(id)
	}
}

func (h *ChannelHub) drop(id string) {
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
	}
}

func encodeFrame(out protocol.Outbound) ([]byte, bool) {
	frame, err := out.Encode()
	if err != nil {
		logger.Error().Err(err).Str("event", out.Event).Msg("failed to encode event")
		return nil, false
	}
	return frame, true
}
