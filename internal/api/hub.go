package api

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// progressMessage is the wire shape streamed to a run's websocket
// subscribers, mirroring the base repository's WSMessage envelope
// narrowed to the one event this surface emits.
type progressMessage struct {
	RunID             string `json:"run_id"`
	PermutationsDone  int    `json:"permutations_done"`
	PermutationsTotal int    `json:"permutations_total"`
	Status            string `json:"status"`
}

// client is one websocket connection subscribed to a single run's
// progress channel.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// hub fans progress updates for a run out to every client subscribed
// to it. Adapted from the base repository's internal/api.Hub: the
// register/unregister/broadcast channel trio is kept, narrowed from a
// global broadcast plus arbitrary named channels down to exactly one
// channel per run ID, since that is the only subscription this surface
// offers.
type hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	channels map[string]map[*client]bool
}

func newHub(logger *zap.Logger) *hub {
	return &hub{logger: logger, channels: make(map[string]map[*client]bool)}
}

func (h *hub) subscribe(runID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[runID] == nil {
		h.channels[runID] = make(map[*client]bool)
	}
	h.channels[runID][c] = true
}

func (h *hub) unsubscribe(runID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.channels[runID]; ok {
		delete(clients, c)
		close(c.send)
		if len(clients) == 0 {
			delete(h.channels, runID)
		}
	}
}

// publish pushes a progress snapshot to every client subscribed to
// runID. A client whose send buffer is full is dropped rather than
// blocking the publisher, the same backpressure rule the base
// repository's Hub.broadcast uses.
func (h *hub) publish(runID string, msg progressMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal progress message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[runID] {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow progress subscriber", zap.String("run_id", runID))
		}
	}
}

// writeLoop drains c.send to the underlying connection until it is
// closed, the minimal half of the base repository's Client
// read/write-pump pair this read-only progress stream needs.
func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.Close()
}
