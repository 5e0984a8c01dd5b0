// Package api exposes sync operations over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/runlock"
	"github.com/steveyegge/feedsync/internal/schema"
)

// DefaultBatchSize is used when a batch request carries no batch_size.
const DefaultBatchSize = 5

// Service is the set of engine operations the API serves.
// *engine.Engine implements it.
type Service interface {
	RunFullSync(ctx context.Context) (*engine.SyncReport, error)
	RunBatchSync(ctx context.Context, batchSize, offset int) (*engine.BatchReport, error)
	RetryFailedAll(ctx context.Context) (*engine.RetryReport, error)
	Rollback(ctx context.Context, scope ledger.Scope) (*engine.RollbackReport, error)
	GetStats(ctx context.Context) (*schema.LedgerStats, error)
	GetFailedNeedingRetry(ctx context.Context, maxRetries int) ([]*schema.SyncRecord, error)
	GetRecentLog(ctx context.Context, limit int) ([]*schema.SyncRecord, error)
}

var _ Service = (*engine.Engine)(nil)

// Config holds router options.
type Config struct {
	// Locker serializes mutating requests (default: in-process lock)
	Locker runlock.Locker

	// WebSocket is mounted at /ws when set
	WebSocket http.Handler

	// BatchSize is the default batch size for /api/sync/batch
	BatchSize int

	// Now is used to resolve relative rollback dates (default: time.Now)
	Now func() time.Time

	// Logger for request errors (default: stderr logger)
	Logger *log.Logger
}

// Server handles API requests.
type Server struct {
	svc    Service
	config Config
	logger *log.Logger
}

// response is the envelope every endpoint returns.
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// NewRouter constructs a Gin engine with all routes registered.
func NewRouter(svc Service, config Config) *gin.Engine {
	if config.Locker == nil {
		config.Locker = runlock.NewLocal()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}

	s := &Server{svc: svc, config: config, logger: config.Logger}

	r := gin.New()
	r.Use(gin.Recovery())

	g := r.Group("/api")
	g.POST("/sync", s.locked(s.handleSync))
	g.POST("/sync/batch", s.locked(s.handleBatch))
	g.POST("/retry", s.locked(s.handleRetry))
	g.POST("/rollback", s.locked(s.handleRollback))
	g.GET("/stats", s.handleStats)
	g.GET("/failed", s.handleFailed)
	g.GET("/logs", s.handleLogs)
	g.GET("/health", handleHealth)

	if config.WebSocket != nil {
		r.GET("/ws", gin.WrapH(config.WebSocket))
	}
	return r
}

// locked wraps h so it runs only while holding the sync lock.
func (s *Server) locked(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		release, err := s.config.Locker.Acquire(c.Request.Context(), runlock.SyncLock)
		if err != nil {
			s.fail(c, err, nil)
			return
		}
		defer release()
		h(c)
	}
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, response{Success: true, Data: gin.H{"status": "healthy"}})
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, response{Success: true, Data: data})
}

// fail writes an error envelope. data, when non-nil, carries a partial report.
func (s *Server) fail(c *gin.Context, err error, data interface{}) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, response{Success: false, Data: data, Error: err.Error()})
}

func statusFor(err error) int {
	var badRequest *requestError
	switch {
	case errors.As(err, &badRequest),
		errors.Is(err, engine.ErrInvalidBatch),
		errors.Is(err, engine.ErrNoFeedURL):
		return http.StatusBadRequest
	case errors.Is(err, runlock.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, engine.ErrFetch):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// requestError marks invalid client input.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}
