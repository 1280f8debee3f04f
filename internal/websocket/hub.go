package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"

	"github.com/stemforge/api/internal/model"
)

// ScopeAll subscribes a client to every job's updates.
const ScopeAll = "*"

// Subscriber receives broadcast payloads for one job id, or for all jobs
// when Scope is ScopeAll. Delivery is best-effort: a subscriber whose
// buffer is full is dropped rather than blocking the broadcast path.
// Send is closed only by the unregister path; eviction is signaled
// through Evicted so the connection handler can keep using Send safely
// until it unregisters.
type Subscriber struct {
	Scope   string
	Send    chan []byte
	Evicted chan struct{}
}

// NewSubscriber creates a subscriber with a bounded send buffer.
func NewSubscriber(scope string) *Subscriber {
	return &Subscriber{
		Scope:   scope,
		Send:    make(chan []byte, 256),
		Evicted: make(chan struct{}),
	}
}

// Hub fans job updates out to WebSocket subscribers
type Hub struct {
	// Subscribers grouped by scope (job id or ScopeAll)
	subscribers map[string]map[*Subscriber]bool

	// Register requests
	register chan *Subscriber

	// Unregister requests
	unregister chan *Subscriber

	// Broadcast messages to subscribers
	broadcast chan *broadcastMessage

	mu sync.RWMutex
}

type broadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan *broadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			if h.subscribers[sub.Scope] == nil {
				h.subscribers[sub.Scope] = make(map[*Subscriber]bool)
			}
			h.subscribers[sub.Scope][sub] = true
			h.mu.Unlock()
			logrus.WithField("scope", sub.Scope).Debug("subscriber registered")

		case sub := <-h.unregister:
			h.mu.Lock()
			if subs, ok := h.subscribers[sub.Scope]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.subscribers, sub.Scope)
				}
			}
			h.mu.Unlock()
			// The sub is out of every delivery map at this point (the
			// loop is the only goroutine that touches them), so closing
			// here cannot race with a broadcast.
			close(sub.Send)
			logrus.WithField("scope", sub.Scope).Debug("subscriber unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.deliver(h.subscribers[msg.JobID], msg.Message)
			h.deliver(h.subscribers[ScopeAll], msg.Message)
			h.mu.Unlock()
		}
	}
}

// deliver pushes a payload to each subscriber without blocking. Callers
// hold the write lock because slow subscribers are evicted in place.
func (h *Hub) deliver(subs map[*Subscriber]bool, payload []byte) {
	for sub := range subs {
		select {
		case sub.Send <- payload:
		default:
			// Slow consumer: drop the subscriber, never the broadcast.
			// Send stays open because the connection handler may still
			// write a pong to it; unregister closes it later.
			delete(subs, sub)
			close(sub.Evicted)
		}
	}
}

// Register adds a new subscriber
func (h *Hub) Register(sub *Subscriber) {
	h.register <- sub
}

// Unregister removes a subscriber
func (h *Hub) Unregister(sub *Subscriber) {
	h.unregister <- sub
}

// BroadcastProgress sends a progress update to the job's subscribers
func (h *Hub) BroadcastProgress(jobID string, progress int, phase model.JobPhase, message string) {
	h.publish(jobID, model.WSProgressMessage{
		Type:     model.WSMessageTypeProgress,
		JobID:    jobID,
		Progress: progress,
		Status:   phase,
		Message:  message,
	})
}

// BroadcastComplete sends a completion message to the job's subscribers
func (h *Hub) BroadcastComplete(jobID string, result interface{}) {
	h.publish(jobID, model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Result: result,
	})
}

// BroadcastError sends a terminal error message to the job's subscribers
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.publish(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

func (h *Hub) publish(jobID string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("failed to marshal broadcast message")
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{JobID: jobID, Message: data}:
	case <-time.After(time.Second):
		// Broadcast must never stall job execution.
		logrus.WithField("jobId", jobID).Warn("broadcast queue full, dropping update")
	}
}

// HandleConnection pumps hub messages for one scope over a WebSocket
// connection until the peer goes away.
func (h *Hub) HandleConnection(c *websocket.Conn, scope string) {
	sub := NewSubscriber(scope)

	h.Register(sub)
	defer h.Unregister(sub)

	// Writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-sub.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}

			case <-sub.Evicted:
				c.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Debug("websocket read error")
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			// After eviction nothing drains Send, so never block on it.
			select {
			case sub.Send <- data:
			case <-sub.Evicted:
			}
		}
	}
}
