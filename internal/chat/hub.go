// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package chat implements the shared room: history replay, message
// posting and fan-out to connected clients.
package chat

import (
	"sync"

	"github.com/samber/lo"
)

// client is one open live channel.
type client struct {
	ch        chan []byte
	sessionID string
}

// Hub is the registry of open channels. It is mutated on connect and
// disconnect and read on every broadcast, so all access goes through
// the mutex.
type Hub struct {
	clients []client
	mu      sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Register adds a client for the given session and returns the channel
// to receive broadcasts on.
func (h *Hub) Register(sessionID string) chan []byte {
	ch := make(chan []byte, 16) // buffered to prevent blocking

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients = append(h.clients, client{ch: ch, sessionID: sessionID})
	return ch
}

// Unregister removes a client channel and closes it.
func (h *Hub) Unregister(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients = lo.Filter(h.clients, func(c client, _ int) bool {
		return c.ch != ch
	})
	close(ch)
}

// Broadcast delivers a payload to every open channel, including the
// one that originated it. Slow clients with a full buffer are skipped
// rather than blocking the room.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.ch <- payload:
		default:
			// Channel full, skip
		}
	}
}

// ClientCount returns the number of open channels.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionCount returns the number of distinct sessions with an open
// channel (one user may have several tabs).
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(lo.UniqBy(h.clients, func(c client) string {
		return c.sessionID
	}))
}
