package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/feedsync/internal/api"
	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/engine/enginetest"
	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/mapper"
	"github.com/steveyegge/feedsync/internal/runlock"
	"github.com/steveyegge/feedsync/internal/schema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	router http.Handler
	feed   *enginetest.Feed
	dest   *enginetest.Destination
	db     *ledger.DB
	locker *runlock.Local
}

func newHarness(t *testing.T, feedURL string, entries ...*schema.FeedEntry) *harness {
	t.Helper()

	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		feed:   enginetest.NewFeed(entries...),
		dest:   enginetest.NewDestination(),
		db:     db,
		locker: runlock.NewLocal(),
	}

	eng, err := engine.New(engine.Deps{
		Ledger:      db,
		Feed:        h.feed,
		Destination: h.dest,
		Mapper:      mapper.New(nil),
		Settings:    enginetest.Settings{FeedURL: feedURL},
	}, engine.Config{
		MaxRetries: 3,
		Logger:     log.New(io.Discard, "", 0),
		Now:        func() time.Time { return testNow },
	})
	require.NoError(t, err)

	h.router = api.NewRouter(eng, api.Config{
		Locker: h.locker,
		Now:    func() time.Time { return testNow },
		Logger: log.New(io.Discard, "", 0),
	})
	return h
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (h *harness) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

const feedURL = "https://example.substack.com/feed"

func TestHealth(t *testing.T) {
	h := newHarness(t, feedURL)

	code, env := h.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestSync_Success(t *testing.T) {
	h := newHarness(t, feedURL, enginetest.Entry("a", "Alpha"), enginetest.Entry("b", "Beta"))

	code, env := h.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	report := decode[engine.SyncReport](t, env.Data)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, "Processed 2 posts: 2 imported, 0 updated, 0 skipped", report.Message)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "Alpha", report.Outcomes[0].Title)
}

func TestSync_NoFeedURL(t *testing.T) {
	h := newHarness(t, "")

	code, env := h.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "no feed URL configured")
}

func TestSync_FetchError(t *testing.T) {
	h := newHarness(t, feedURL)
	h.feed.Err = errors.New("connection refused")

	code, env := h.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "connection refused")

	report := decode[engine.SyncReport](t, env.Data)
	assert.False(t, report.Success)
}

func TestSync_Locked(t *testing.T) {
	h := newHarness(t, feedURL, enginetest.Entry("a", "Alpha"))

	release, err := h.locker.Acquire(context.Background(), runlock.SyncLock)
	require.NoError(t, err)

	code, env := h.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, runlock.ErrLocked.Error(), env.Error)
	assert.Zero(t, h.feed.Fetches)

	release()
	code, _ = h.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestBatch_Progress(t *testing.T) {
	h := newHarness(t, feedURL,
		enginetest.Entry("a", "Alpha"), enginetest.Entry("b", "Beta"), enginetest.Entry("c", "Gamma"))

	code, env := h.do(t, http.MethodPost, "/api/sync/batch", `{"offset":0,"batch_size":2}`)
	require.Equal(t, http.StatusOK, code)

	report := decode[engine.BatchReport](t, env.Data)
	assert.Equal(t, 2, report.NextOffset)
	assert.True(t, report.HasMore)
	assert.Equal(t, 66.7, report.ProgressPercentage)

	code, env = h.do(t, http.MethodPost, "/api/sync/batch", `{"offset":2,"batch_size":2}`)
	require.Equal(t, http.StatusOK, code)

	report = decode[engine.BatchReport](t, env.Data)
	assert.False(t, report.HasMore)
	assert.Equal(t, 100.0, report.ProgressPercentage)
	assert.Equal(t, 1, report.Processed)
}

func TestBatch_DefaultSize(t *testing.T) {
	entries := make([]*schema.FeedEntry, 0, 7)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		entries = append(entries, enginetest.Entry(id, "Entry "+id))
	}
	h := newHarness(t, feedURL, entries...)

	code, env := h.do(t, http.MethodPost, "/api/sync/batch", "")
	require.Equal(t, http.StatusOK, code)

	report := decode[engine.BatchReport](t, env.Data)
	assert.Equal(t, api.DefaultBatchSize, report.Processed)
	assert.Equal(t, api.DefaultBatchSize, report.NextOffset)
}

func TestBatch_Invalid(t *testing.T) {
	h := newHarness(t, feedURL, enginetest.Entry("a", "Alpha"))

	code, env := h.do(t, http.MethodPost, "/api/sync/batch", `{"offset":-1,"batch_size":2}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)

	code, _ = h.do(t, http.MethodPost, "/api/sync/batch", `{"offset":"x"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRetryAndFailed(t *testing.T) {
	h := newHarness(t, feedURL, enginetest.Entry("a", "Alpha"), enginetest.Entry("b", "Beta"))
	h.dest.Fail("Beta", true)

	code, _ := h.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, code)

	code, env := h.do(t, http.MethodGet, "/api/failed", "")
	require.Equal(t, http.StatusOK, code)
	failed := decode[[]*schema.SyncRecord](t, env.Data)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].ExternalID)

	code, env = h.do(t, http.MethodPost, "/api/retry", "")
	require.Equal(t, http.StatusOK, code)
	retry := decode[engine.RetryReport](t, env.Data)
	assert.Equal(t, 1, retry.RetriedCount)
	assert.Equal(t, "Reset 1 failed posts. Run sync again to retry.", retry.Message)

	record, err := h.db.FindByExternalID("b")
	require.NoError(t, err)
	assert.Equal(t, schema.StatusPending, record.Status)
}

func TestStatsAndLogs(t *testing.T) {
	h := newHarness(t, feedURL, enginetest.Entry("a", "Alpha"), enginetest.Entry("b", "Beta"))
	code, _ := h.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, code)

	code, env := h.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, code)
	stats := decode[schema.LedgerStats](t, env.Data)
	assert.Equal(t, 2, stats.TotalCount)
	assert.Equal(t, 2, stats.ImportedCount)

	code, env = h.do(t, http.MethodGet, "/api/logs?limit=1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]*schema.SyncRecord](t, env.Data), 1)

	code, env = h.do(t, http.MethodGet, "/api/logs?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "invalid limit")
}

func TestRollback_All(t *testing.T) {
	h := newHarness(t, feedURL, enginetest.Entry("a", "Alpha"), enginetest.Entry("b", "Beta"))
	code, _ := h.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, code)

	code, env := h.do(t, http.MethodPost, "/api/rollback", `{"type":"all"}`)
	require.Equal(t, http.StatusOK, code)

	report := decode[engine.RollbackReport](t, env.Data)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 2, report.Pruned)
	assert.Zero(t, h.dest.Len())
}

func TestRollback_DateRange(t *testing.T) {
	h := newHarness(t, feedURL, enginetest.Entry("a", "Alpha"))
	code, _ := h.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, code)

	// Synced at testNow; a range ending the day before matches nothing
	code, env := h.do(t, http.MethodPost, "/api/rollback",
		`{"type":"date","date_from":"2023-12-01","date_to":"yesterday"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Zero(t, decode[engine.RollbackReport](t, env.Data).Pruned)

	code, env = h.do(t, http.MethodPost, "/api/rollback",
		`{"type":"date","date_from":"2024-01-01","date_to":"2024-01-01"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, decode[engine.RollbackReport](t, env.Data).Pruned)
}

func TestRollback_BadRequests(t *testing.T) {
	h := newHarness(t, feedURL)

	for _, body := range []string{
		`{}`,
		`{"type":"everything"}`,
		`{"type":"date","date_from":"2024-01-01"}`,
		`{"type":"date","date_from":"2024-01-05","date_to":"2024-01-01"}`,
		`{"type":"date","date_from":"whenever","date_to":"2024-01-01"}`,
	} {
		code, env := h.do(t, http.MethodPost, "/api/rollback", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.False(t, env.Success, body)
	}
}
