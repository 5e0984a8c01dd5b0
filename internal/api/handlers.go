package api

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/steveyegge/feedsync/internal/dateparse"
	"github.com/steveyegge/feedsync/internal/ledger"
)

// BatchRequest selects the slice of the feed to process.
type BatchRequest struct {
	Offset    int `json:"offset" form:"offset"`
	BatchSize int `json:"batch_size" form:"batch_size"`
}

// RollbackRequest selects what to roll back.
// DateFrom and DateTo accept YYYY-MM-DD or expressions like "yesterday".
type RollbackRequest struct {
	Type     string `json:"type" form:"type" binding:"required"`
	DateFrom string `json:"date_from" form:"date_from"`
	DateTo   string `json:"date_to" form:"date_to"`
}

// handleSync runs a full sync.
// POST /api/sync
func (s *Server) handleSync(c *gin.Context) {
	report, err := s.svc.RunFullSync(c.Request.Context())
	if err != nil {
		s.fail(c, err, report)
		return
	}
	ok(c, report)
}

// handleBatch runs one batch.
// POST /api/sync/batch
func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBind(&req); err != nil {
		s.fail(c, badRequest(err), nil)
		return
	}
	if req.BatchSize == 0 {
		req.BatchSize = s.config.BatchSize
	}

	report, err := s.svc.RunBatchSync(c.Request.Context(), req.BatchSize, req.Offset)
	if err != nil {
		s.fail(c, err, report)
		return
	}
	ok(c, report)
}

// handleRetry resets failed entries for another attempt.
// POST /api/retry
func (s *Server) handleRetry(c *gin.Context) {
	report, err := s.svc.RetryFailedAll(c.Request.Context())
	if err != nil {
		s.fail(c, err, report)
		return
	}
	ok(c, report)
}

// handleRollback deletes synced records in scope.
// POST /api/rollback
func (s *Server) handleRollback(c *gin.Context) {
	var req RollbackRequest
	if err := c.ShouldBind(&req); err != nil {
		s.fail(c, badRequest(err), nil)
		return
	}

	scope, err := s.parseScope(req)
	if err != nil {
		s.fail(c, badRequest(err), nil)
		return
	}

	report, err := s.svc.Rollback(c.Request.Context(), scope)
	if err != nil {
		s.fail(c, err, report)
		return
	}
	ok(c, report)
}

func (s *Server) parseScope(req RollbackRequest) (ledger.Scope, error) {
	kind, err := ledger.ParseScopeKind(req.Type)
	if err != nil {
		return ledger.Scope{}, err
	}

	switch kind {
	case ledger.ScopeAll:
		return ledger.All(), nil
	case ledger.ScopeFailed:
		return ledger.FailedOnly(), nil
	}

	if req.DateFrom == "" || req.DateTo == "" {
		return ledger.Scope{}, fmt.Errorf("date_from and date_to are required for date rollback")
	}
	now := s.config.Now()
	from, err := dateparse.Day(req.DateFrom, now)
	if err != nil {
		return ledger.Scope{}, err
	}
	to, err := dateparse.Day(req.DateTo, now)
	if err != nil {
		return ledger.Scope{}, err
	}
	return ledger.DateRange(from, to)
}

// handleStats returns ledger statistics.
// GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.svc.GetStats(c.Request.Context())
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	ok(c, stats)
}

// handleFailed lists failed entries still under the retry cap.
// GET /api/failed?max_retries=N
func (s *Server) handleFailed(c *gin.Context) {
	maxRetries, err := intQuery(c, "max_retries")
	if err != nil {
		s.fail(c, err, nil)
		return
	}

	records, err := s.svc.GetFailedNeedingRetry(c.Request.Context(), maxRetries)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	ok(c, records)
}

// handleLogs lists the most recently synced entries.
// GET /api/logs?limit=N
func (s *Server) handleLogs(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		s.fail(c, err, nil)
		return
	}

	records, err := s.svc.GetRecentLog(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err, nil)
		return
	}
	ok(c, records)
}

// intQuery reads an optional integer query parameter (0 when absent).
func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(fmt.Errorf("invalid %s %q", key, raw))
	}
	return n, nil
}
