// Package dashboard pushes sync progress to WebSocket subscribers.
//
// Every frame is a JSON Message. A subscriber gets a stats frame when it
// connects, then item_update frames as entries are processed, followed by
// sync_complete, batch_progress or rollback when a run ends, each trailed by
// a fresh stats frame. The server listens on its own port (Start) or is
// mounted into another router (WebSocketHandler).
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/steveyegge/feedsync/internal/schema"
)

// MessageType names a dashboard frame.
type MessageType string

const (
	MessageTypeItemUpdate    MessageType = "item_update"
	MessageTypeSyncComplete  MessageType = "sync_complete"
	MessageTypeBatchProgress MessageType = "batch_progress"
	MessageTypeRollback      MessageType = "rollback"
	MessageTypeStats         MessageType = "stats"
)

// queueSize is the number of frames buffered ahead of the fan-out goroutine.
// Further frames are dropped until it drains.
const queueSize = 100

// Message is one dashboard frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatsFunc loads the ledger summary sent in stats frames.
type StatsFunc func(ctx context.Context) (*schema.LedgerStats, error)

// Config configures a Server.
type Config struct {
	// Port for Start. 0 picks a free port.
	Port int

	// Stats fills stats frames. Without it stats frames carry no data.
	Stats StatsFunc

	Logger *log.Logger
}

// Server fans dashboard frames out to WebSocket subscribers.
type Server struct {
	port   int
	stats  StatsFunc
	logger *log.Logger

	subs   *hub
	frames chan []byte
	fanout sync.Once

	ln   net.Listener
	http *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer creates a Server. Nothing listens until Start or WebSocketHandler.
func NewServer(config Config) *Server {
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		port:   config.Port,
		stats:  config.Stats,
		logger: config.Logger,
		subs:   newHub(config.Logger),
		frames: make(chan []byte, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start serves /ws and /health on the configured port.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.port, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.WebSocketHandler())
	mux.HandleFunc("/health", s.handleHealth)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard on ws://%s/ws", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Dashboard listener failed: %v", err)
		}
	}()
	return nil
}

// WebSocketHandler returns the subscribe endpoint for mounting elsewhere.
func (s *Server) WebSocketHandler() http.HandlerFunc {
	s.fanout.Do(func() {
		s.wg.Add(1)
		go s.run()
	})
	return s.subscribe
}

// Stop disconnects subscribers, closes the listener if any and waits for
// background goroutines.
func (s *Server) Stop() error {
	s.cancel()
	s.subs.closeAll("shutting down")

	var err error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := s.http.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("failed to shut down dashboard: %w", serr)
		}
	}
	s.wg.Wait()
	return err
}

// BroadcastData encodes data as a frame of type typ and queues it.
func (s *Server) BroadcastData(typ MessageType, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("Failed to encode %s frame: %v", typ, err)
		return
	}
	s.enqueue(Message{Type: typ, Timestamp: time.Now(), Data: raw})
}

// BroadcastStats queues a stats frame. No-op without a StatsFunc.
func (s *Server) BroadcastStats(ctx context.Context) {
	if s.stats == nil {
		return
	}
	s.enqueue(s.statsFrame(ctx))
}

func (s *Server) enqueue(msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to encode %s frame: %v", msg.Type, err)
		return
	}
	select {
	case s.frames <- frame:
	case <-s.ctx.Done():
	default:
		s.logger.Printf("Dashboard queue full, dropped %s frame", msg.Type)
	}
}

func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.frames:
			s.subs.send(frame)
		}
	}
}

// subscribe upgrades the request, registers the connection and sends it a
// stats frame.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	n := s.subs.add(conn)
	s.logger.Printf("Subscriber joined (%d connected)", n)

	if frame, err := json.Marshal(s.statsFrame(r.Context())); err == nil {
		if err := write(conn, frame); err != nil {
			s.subs.drop(conn, websocket.StatusInternalError, "write failed")
			return
		}
	}

	// Subscribers never send; reading only detects the close.
	go func() {
		defer s.subs.drop(conn, websocket.StatusNormalClosure, "")
		for {
			if _, _, err := conn.Read(s.ctx); err != nil {
				return
			}
		}
	}()
}

func (s *Server) statsFrame(ctx context.Context) Message {
	msg := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if s.stats == nil {
		return msg
	}
	stats, err := s.stats(ctx)
	if err != nil {
		s.logger.Printf("Failed to load stats: %v", err)
		return msg
	}
	if raw, err := json.Marshal(stats); err == nil {
		msg.Data = raw
	}
	return msg
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"subscribers": s.subs.len(),
	})
}

// Addr returns the bound address after Start, or ":<port>" before.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return fmt.Sprintf(":%d", s.port)
}

// Subscribers returns the number of connected subscribers.
func (s *Server) Subscribers() int {
	return s.subs.len()
}
