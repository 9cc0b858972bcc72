// Package realtime pushes recorder events to connected dashboards over
// WebSocket, with Redis pub/sub fanning events out across instances.
package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	// SendQueueSize bounds each client's outbound queue. A dashboard that
	// cannot keep up loses its oldest unsent events, never the connection.
	SendQueueSize = 1000
)

// Event names pushed over the feed.
const (
	EventRecordingStarted  = "recording_started"
	EventRecordingProgress = "recording_progress"
	EventRecordingFinished = "recording_finished"
	EventRotationApplied   = "rotation_applied"
)

// Publisher publishes events to other instances.
type Publisher interface {
	PublishEvent(event string, payload []byte) error
}

// Subscriber receives events published by other instances.
type Subscriber interface {
	SubscribeEvents(handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains the set of connected dashboard clients. There is a single
// feed: every client sees every event.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	pub        Publisher
	subscribed bool
	cancel     func()
	logger     *zap.Logger
}

// NewHub creates a hub. pub and sub may be nil for single-instance setups.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		clients: make(map[string]*Client),
		pub:     pub,
		logger:  logger,
	}
	if sub != nil {
		cancel, err := sub.SubscribeEvents(func(event string, payload []byte) {
			h.broadcastLocal(event, json.RawMessage(payload))
		})
		if err != nil {
			logger.Warn("event subscription failed, cross-instance fan-out disabled", zap.Error(err))
		} else {
			h.subscribed = true
			h.cancel = cancel
		}
	}
	return h
}

// Register adds a client to the feed.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.Int("clients", n))
}

// Unregister removes a client from the feed.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.Int("clients", n))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers an event to every client on every instance. When the
// hub is subscribed it only publishes: the pub/sub delivery loops the event
// back to this instance too, so local clients receive it exactly once.
// Without a subscription it delivers locally itself.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data := marshalPayload(payload)
	if h.pub != nil && h.subscribed {
		if err := h.pub.PublishEvent(event, data); err != nil {
			h.logger.Warn("event publish failed", zap.String("event", event), zap.Error(err))
			h.broadcastLocal(event, data)
		}
		return
	}
	h.broadcastLocal(event, data)
	if h.pub != nil {
		if err := h.pub.PublishEvent(event, data); err != nil {
			h.logger.Warn("event publish failed", zap.String("event", event), zap.Error(err))
		}
	}
}

func (h *Hub) broadcastLocal(event string, data json.RawMessage) {
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(msg)
	}
}

// Close stops the cross-instance subscription and disconnects every client.
func (h *Hub) Close() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func marshalPayload(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case []byte:
		return v
	case json.RawMessage:
		return v
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
