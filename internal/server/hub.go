// Package server wires the module graph, plugin container, transform
// pipeline, HMR propagator, dependency optimizer, and client runtime into
// an HTTP server, grounded on tools/please_js/esmdev/server.go's esmServer
// (ServeHTTP dispatch order, port-retry listen loop) generalized from its
// SSE hub to a gorilla/websocket hub speaking the "vite-hmr" subprotocol.
package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pleasejs/esmdev/internal/hmr"
)

var upgrader = websocket.Upgrader{
	Subprotocols:    []string{"vite-hmr"},
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// hub fans out hmr.Payload broadcasts to every connected WebSocket client.
// It implements hmr.Broadcaster.
type hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

func newHub(log *zap.Logger) *hub {
	return &hub{log: log, clients: make(map[string]*websocket.Conn)}
}

var _ hmr.Broadcaster = (*hub)(nil)

func (h *hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = conn
	h.mu.Unlock()
	h.log.Debug("client connected", zap.String("connId", id))

	conn.WriteJSON(map[string]string{"type": "connected"})

	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		conn.Close()
		h.log.Debug("client disconnected", zap.String("connId", id))
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast implements hmr.Broadcaster: it marshals payload into the
// WebSocket wire shape and writes it to every connected client, dropping
// any connection that errors.
func (h *hub) Broadcast(p hmr.Payload) {
	msg := encodePayload(p)
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Warn("failed to marshal hmr payload", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("dropping client after write error", zap.String("connId", id), zap.Error(err))
			conn.Close()
			delete(h.clients, id)
		}
	}
}

func encodePayload(p hmr.Payload) map[string]any {
	switch p.Kind {
	case "update":
		return map[string]any{"type": "update", "updates": p.Updates}
	case "full-reload":
		msg := map[string]any{"type": "full-reload"}
		if p.Path != "" {
			msg["path"] = p.Path
		}
		return msg
	case "prune":
		return map[string]any{"type": "prune", "paths": p.Paths}
	default:
		return map[string]any{"type": p.Kind}
	}
}
