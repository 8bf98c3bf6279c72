package services

import (
	"context"
	"sync"
	"time"
)

const (
	ActivitySearch = "search"
	ActivityAction = "action"
	ActivityLogin  = "login"
)

// ActivityEvent is what admins see on the live feed. It never carries request
// or response bodies.
type ActivityEvent struct {
	Kind    string    `json:"kind"`
	UserID  *int64    `json:"user_id"`
	Tag     string    `json:"tag"`
	Success *bool     `json:"success,omitempty"`
	At      time.Time `json:"at"`
}

// ActivityClient is satisfied by *websocket.Conn.
type ActivityClient interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type ActivityHub struct {
	mu      sync.Mutex
	clients map[ActivityClient]bool
	ch      chan ActivityEvent
}

func NewActivityHub() *ActivityHub {
	return &ActivityHub{
		clients: map[ActivityClient]bool{},
		ch:      make(chan ActivityEvent, 64),
	}
}

func (h *ActivityHub) Run(ctx context.Context) {
	for {
		select {
		case event := <-h.ch:
			h.deliver(event)
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *ActivityHub) deliver(event ActivityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			_ = conn.Close()
			delete(h.clients, conn)
		}
	}
}

// Publish never blocks; events are dropped when the queue is full.
func (h *ActivityHub) Publish(event ActivityEvent) {
	if h == nil {
		return
	}
	select {
	case h.ch <- event:
	default:
	}
}

func (h *ActivityHub) Add(conn ActivityClient) {
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
}

func (h *ActivityHub) Remove(conn ActivityClient) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
}

func (h *ActivityHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
