// Package tracerelay streams the harness's per-stabilise trace (spec.md §6)
// to connected WebSocket clients, so external tooling — a graph visualiser,
// a test dashboard — can watch a run live. It is a transport, not a GUI:
// it carries JSON-encoded harness.Step values and nothing else.
//
// Grounded on internal/network/websocket.go and websocket_server.go's
// gorilla/websocket usage: an Upgrader, a client registry keyed by a
// generated id, and a per-client write pump fed by a buffered channel.
package tracerelay

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hankhank/exys-sub000/internal/harness"
)

// Relay is an http.Handler that upgrades incoming connections to
// WebSocket and fans Broadcast calls out to every connected client.
type Relay struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// New returns a Relay with an origin-permissive upgrader, matching the
// teacher's WebSocketServer default of accepting any client.
func New() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// it as a trace subscriber.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 64)}

	r.mu.Lock()
	r.clients[c.id] = c
	r.mu.Unlock()

	go r.writePump(c)
}

func (r *Relay) writePump(c *client) {
	defer func() {
		r.mu.Lock()
		delete(r.clients, c.id)
		r.mu.Unlock()
		c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcast JSON-encodes step and enqueues it to every connected client,
// dropping the message for any client whose send buffer is full rather
// than blocking the caller.
func (r *Relay) Broadcast(step harness.Step) error {
	data, err := json.Marshal(step)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.clients {
		select {
		case c.send <- data:
		default:
		}
	}
	return nil
}

// ClientCount reports how many subscribers are currently connected.
func (r *Relay) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close disconnects every connected client.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		close(c.send)
		delete(r.clients, id)
	}
}
