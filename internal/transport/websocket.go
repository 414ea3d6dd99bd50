// SPDX-License-Identifier: MIT

// Package transport streams spectrum frames to external consumers.
package transport

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"spectrum/internal/log"
)

// Frame is one broadcast spectrum snapshot.
type Frame struct {
	Frequencies  []float64 `json:"frequencies"`
	MagnitudesDB []float64 `json:"magnitudes_db"`
}

// WebSocketTransport broadcasts frames to every connected client, rate
// limited so a fast analysis loop cannot flood slow consumers.
type WebSocketTransport struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	upgrader  websocket.Upgrader
	server    *http.Server
	listener  net.Listener

	lastSend    time.Time
	minInterval time.Duration
}

// NewWebSocketTransport binds addr and starts a WebSocket server
// serving /spectrum. Binding failures surface here rather than in the
// serve goroutine so a taken port fails startup.
func NewWebSocketTransport(addr string) (*WebSocketTransport, error) {
	t := &WebSocketTransport{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		minInterval: 30 * time.Millisecond,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/spectrum", t.handleWebSocket)
	t.server = &http.Server{Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	t.listener = ln

	go func() {
		log.Infof("spectrum WebSocket server listening on %s", ln.Addr())
		if err := t.server.Serve(ln); err != http.ErrServerClosed {
			log.Errorf("WebSocket server error: %v", err)
		}
	}()

	return t, nil
}

// Addr returns the bound listen address.
func (t *WebSocketTransport) Addr() net.Addr {
	return t.listener.Addr()
}

func (t *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	t.clientsMu.Lock()
	t.clients[conn] = true
	t.clientsMu.Unlock()

	// Reads only serve to detect disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				t.clientsMu.Lock()
				delete(t.clients, conn)
				t.clientsMu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (t *WebSocketTransport) ClientCount() int {
	t.clientsMu.Lock()
	defer t.clientsMu.Unlock()
	return len(t.clients)
}

// Send broadcasts a frame to all clients. Frames arriving faster than
// the rate limit are dropped silently; a dropped display frame is
// cheaper than a backed-up connection.
func (t *WebSocketTransport) Send(frame Frame) error {
	now := time.Now()
	if now.Sub(t.lastSend) < t.minInterval {
		return nil
	}
	t.lastSend = now

	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	t.clientsMu.Lock()
	for client := range t.clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			client.Close()
			delete(t.clients, client)
		}
	}
	t.clientsMu.Unlock()
	return nil
}

// Close drops all clients and shuts the server down.
func (t *WebSocketTransport) Close() error {
	t.clientsMu.Lock()
	for client := range t.clients {
		client.Close()
		delete(t.clients, client)
	}
	t.clientsMu.Unlock()
	return t.server.Close()
}
