// Package wstransport adapts the RPC Binding Layer's unary and
// server-push operations onto a gorilla/websocket connection, grounded
// on the teacher's internal/websocket Hub/Client register-unregister-
// broadcast pattern.
package wstransport

import (
	"sync"

	"github.com/streamspace-dev/pluginrt/internal/logger"
)

// Hub tracks connected peers and routes server-push frames: events.
// callback goes to the one connection that owns a given listener id;
// context.changed goes to every connection attached to that plugin.
type Hub struct {
	mu          sync.RWMutex
	conns       map[*Conn]bool
	listeners   map[string]*Conn   // listenerID -> owning connection
	attachments map[string]map[*Conn]bool // pluginName -> attached connections

	register   chan *Conn
	unregister chan *Conn
}

// NewHub creates an empty Hub. Call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		conns:       map[*Conn]bool{},
		listeners:   map[string]*Conn{},
		attachments: map[string]map[*Conn]bool{},
		register:    make(chan *Conn),
		unregister:  make(chan *Conn),
	}
}

// Run processes registration and unregistration until the hub is
// abandoned (there is no explicit stop: the process owns the hub for
// its lifetime, matching the teacher's Hub.Run).
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.conns[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.conns, c)
			for listenerID, owner := range h.listeners {
				if owner == c {
					delete(h.listeners, listenerID)
				}
			}
			for plugin, set := range h.attachments {
				delete(set, c)
				if len(set) == 0 {
					delete(h.attachments, plugin)
				}
			}
			h.mu.Unlock()
			close(c.send)
			logger.Transport().Debug().Str("conn", c.id).Msg("websocket peer disconnected")
		}
	}
}

// attach records that conn has interacted with plugin, making it a
// recipient of that plugin's context.changed pushes.
func (h *Hub) attach(plugin string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.attachments[plugin]
	if !ok {
		set = map[*Conn]bool{}
		h.attachments[plugin] = set
	}
	set[c] = true
}

// bindListener records which connection owns a remote listener id, so
// events.callback pushes route back to the right peer.
func (h *Hub) bindListener(listenerID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[listenerID] = c
}

func (h *Hub) connForListener(listenerID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.listeners[listenerID]
	return c, ok
}

func (h *Hub) connsForPlugin(plugin string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.attachments[plugin]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
