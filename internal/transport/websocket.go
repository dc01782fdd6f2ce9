// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	applog "pitchd/internal/log"
)

const (
	broadcastDepth = 256
	writeTimeout   = 2 * time.Second
)

// MessageHandler receives the text frames clients send on /ws.
type MessageHandler func(payload []byte) error

// WebSocketTransport broadcasts every message as a JSON text frame to all
// clients connected on /ws. Extra handlers (for example /metrics) can be
// mounted on the same server. Text frames from clients go to the handler
// set with HandleMessages.
type WebSocketTransport struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closed    atomic.Bool
	dropped   atomic.Uint64
	onMessage atomic.Pointer[MessageHandler]

	listener net.Listener
	server   *http.Server
	wg       sync.WaitGroup
	once     sync.Once
}

// Compile-time checks for interface implementations.
var (
	_ Transport   = (*WebSocketTransport)(nil)
	_ DropCounter = (*WebSocketTransport)(nil)
)

// NewWebSocketTransport listens on addr and starts serving. handlers maps
// additional URL paths to their handlers.
func NewWebSocketTransport(addr string, handlers map[string]http.Handler) (*WebSocketTransport, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: listen on %s: %w", addr, err)
	}

	wst := &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local visualizers are served from other origins.
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, broadcastDepth),
		done:      make(chan struct{}),
		listener:  ln,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	for path, h := range handlers {
		mux.Handle(path, h)
	}
	wst.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		applog.Infof("WebSocketTransport: Serving on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	go wst.handleBroadcasts()

	return wst, nil
}

// Addr returns the address the server is listening on.
func (wst *WebSocketTransport) Addr() net.Addr {
	return wst.listener.Addr()
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client %s connected, total: %d", conn.RemoteAddr(), total)

	// A read error means the client went away.
	go func() {
		for {
			kind, payload, err := conn.ReadMessage()
			if err != nil {
				wst.removeClient(conn)
				return
			}
			if kind == websocket.TextMessage {
				wst.dispatch(conn, payload)
			}
		}
	}()
}

// HandleMessages routes client text frames to h. A nil h discards them.
func (wst *WebSocketTransport) HandleMessages(h MessageHandler) {
	if h == nil {
		wst.onMessage.Store(nil)
		return
	}
	wst.onMessage.Store(&h)
}

func (wst *WebSocketTransport) dispatch(conn *websocket.Conn, payload []byte) {
	h := wst.onMessage.Load()
	if h == nil {
		return
	}
	if err := (*h)(payload); err != nil {
		applog.Warnf("WebSocketTransport: Rejected message from %s: %v", conn.RemoteAddr(), err)
	}
}

func (wst *WebSocketTransport) removeClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	if ok {
		conn.Close()
		applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts encodes each message once and writes it to every client.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		var data any
		select {
		case data = <-wst.broadcast:
		case <-wst.done:
			return
		}

		payload, err := json.Marshal(data)
		if err != nil {
			applog.Errorf("WebSocketTransport: Cannot encode %T: %v", data, err)
			continue
		}

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
				applog.Warnf("WebSocketTransport: Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast. When the queue is full the message is
// dropped and counted.
// Performance Critical (Hot Path):
// - No locks
func (wst *WebSocketTransport) Send(data any) error {
	if wst.closed.Load() {
		return ErrClosed
	}
	select {
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

func (wst *WebSocketTransport) Dropped() uint64 {
	return wst.dropped.Load()
}

// Close disconnects all clients and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.once.Do(func() {
		applog.Infof("WebSocketTransport: Closing server")
		wst.closed.Store(true)
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
		wst.wg.Wait()
	})
	return err
}
