package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// Hub keeps track of the live sessions and broadcasts library changes to
// all of them.
type Hub struct {
	sessions   map[*Session]bool
	broadcast  chan []byte
	register   chan *Session
	unregister chan *Session
	mu         sync.RWMutex
}

// NewHub creates a new hub.
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[*Session]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Session),
		unregister: make(chan *Session),
	}
}

// Run handles registration and broadcasting until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			n := len(h.sessions)
			h.mu.Unlock()
			logging.WebSocketEvent("session_opened", n, "session", s.id, "book", s.fingerprint)

		case s := <-h.unregister:
			h.mu.Lock()
			delete(h.sessions, s)
			n := len(h.sessions)
			h.mu.Unlock()
			logging.WebSocketEvent("session_closed", n, "session", s.id)

		case message := <-h.broadcast:
			h.mu.RLock()
			for s := range h.sessions {
				if err := s.enqueueRaw(message); err != nil {
					logging.Warn("broadcast dropped", "session", s.id, "error", err)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a frame to every session.
func (h *Hub) Broadcast(msg Outbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal broadcast", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message", "type", msg.Type)
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// join and leave block until the hub loop takes the session, or give up
// after a second when the hub is not running.
func (h *Hub) join(s *Session) {
	select {
	case h.register <- s:
	case <-time.After(time.Second):
		logging.Warn("hub not running, session not registered", "session", s.id)
	}
}

func (h *Hub) leave(s *Session) {
	select {
	case h.unregister <- s:
	case <-time.After(time.Second):
	}
}
