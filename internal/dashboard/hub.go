package dashboard

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single frame write to one subscriber.
const writeTimeout = 5 * time.Second

// hub is the set of live subscribers. Frames are already encoded.
type hub struct {
	mu     sync.RWMutex
	conns  map[*websocket.Conn]struct{}
	logger *log.Logger
}

func newHub(logger *log.Logger) *hub {
	return &hub{conns: make(map[*websocket.Conn]struct{}), logger: logger}
}

func (h *hub) add(conn *websocket.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
	return len(h.conns)
}

// drop forgets conn and closes it. Unknown conns are ignored.
func (h *hub) drop(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	delete(h.conns, conn)
	n := len(h.conns)
	h.mu.Unlock()

	if ok {
		_ = conn.Close(code, reason)
		h.logger.Printf("Subscriber left (%d connected)", n)
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *hub) snapshot() []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		out = append(out, conn)
	}
	return out
}

// send writes frame to every subscriber, dropping those that fail.
func (h *hub) send(frame []byte) {
	for _, conn := range h.snapshot() {
		if err := write(conn, frame); err != nil {
			h.logger.Printf("Dropping subscriber: %v", err)
			h.drop(conn, websocket.StatusInternalError, "write failed")
		}
	}
}

// closeAll disconnects every subscriber.
func (h *hub) closeAll(reason string) {
	for _, conn := range h.snapshot() {
		h.drop(conn, websocket.StatusGoingAway, reason)
	}
}

func write(conn *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}
