package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/streamsafe/backend/internal/metrics"
)

const defaultBufferSize = 64

// Message is one event addressed to a connection. It is written to the wire as
// {"event": ..., "data": ...}.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// HubConfig controls buffering and which browser origins may connect.
type HubConfig struct {
	BufferSize int
	// AllowedOrigins lists exact Origin header values; "*" allows any.
	AllowedOrigins []string
}

// Hub is the registry of live realtime connections. Emits are targeted at
// one connection and never block: unknown handles and full buffers drop the
// event.
type Hub struct {
	mu      sync.RWMutex
	conns   map[string]chan Message
	closed  bool
	buffer  int
	origins map[string]bool
	anyOrig bool
	logger  *slog.Logger
}

// NewHub creates an empty registry.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &Hub{
		conns:   make(map[string]chan Message),
		buffer:  cfg.BufferSize,
		origins: make(map[string]bool, len(cfg.AllowedOrigins)),
		logger:  logger,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			h.anyOrig = true
			continue
		}
		h.origins[origin] = true
	}
	return h
}

// Connect registers a new connection and returns its handle and event stream.
// The stream is closed by Disconnect or Close.
func (h *Hub) Connect() (string, <-chan Message) {
	id := uuid.NewString()
	ch := make(chan Message, h.buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.conns[id] = ch
	metrics.RealtimeConnections.Inc()
	return id, ch
}

// EmitTo queues an event for the connection with the given handle.
func (h *Hub) EmitTo(id, event string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.conns[id]
	if !ok {
		metrics.RealtimeEventsDropped.WithLabelValues("unknown_connection").Inc()
		h.logger.Debug("realtime event dropped, unknown connection", "connectionId", id, "event", event)
		return
	}

	select {
	case ch <- Message{Event: event, Data: payload}:
		metrics.RealtimeEventsSent.WithLabelValues(event).Inc()
	default:
		metrics.RealtimeEventsDropped.WithLabelValues("buffer_full").Inc()
		h.logger.Warn("realtime event dropped, buffer full", "connectionId", id, "event", event)
	}
}

// Disconnect removes the connection and closes its stream. Unknown handles are ignored.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	close(ch)
	metrics.RealtimeConnections.Dec()
}

// Close disconnects every connection and rejects later ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.conns {
		delete(h.conns, id)
		close(ch)
		metrics.RealtimeConnections.Dec()
	}
}

// Count reports the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) originAllowed(origin string) bool {
	if origin == "" || h.anyOrig {
		return true
	}
	return h.origins[origin]
}
