package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/feedsync/internal/engine/enginetest"
	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/schema"
)

// seedRollback leaves A imported, B failed on import (no local id) and
// C failed on update (local id kept).
func seedRollback(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := newHarness(t, schema.Settings{}, abc()...)

	h.dest.Fail("Bravo", true)
	_, err := h.eng.RunFullSync(ctx)
	require.NoError(t, err)

	h.dest.Fail("Charlie", true)
	_, err = h.eng.RunFullSync(ctx)
	require.NoError(t, err)

	c, err := h.ledger.FindByExternalID("C")
	require.NoError(t, err)
	require.Equal(t, schema.StatusError, c.Status)
	require.True(t, c.HasLocalRecord())
	return h
}

func TestRollback_FailedOnly(t *testing.T) {
	ctx := context.Background()
	h := seedRollback(t)
	c, err := h.ledger.FindByExternalID("C")
	require.NoError(t, err)

	report, err := h.eng.Rollback(ctx, ledger.FailedOnly())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Candidates)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 2, report.Pruned)
	assert.Equal(t, []int64{c.LocalRecordID}, h.dest.Deletes)

	assert.Equal(t, map[string]schema.Status{"A": schema.StatusUpdated}, h.statuses(t))
	assert.Equal(t, 1, h.dest.Len())
	assert.Len(t, h.obs.Rollbacks, 1)
}

func TestRollback_All(t *testing.T) {
	ctx := context.Background()
	h := seedRollback(t)

	report, err := h.eng.Rollback(ctx, ledger.All())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 3, report.Pruned)
	assert.Len(t, h.dest.Deletes, 2, "rows without a local id never reach the destination")
	assert.Empty(t, h.statuses(t))
	assert.Equal(t, 0, h.dest.Len())
}

func TestRollback_DeleteFailureStillPrunes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, schema.Settings{}, abc()...)
	report, err := h.eng.RunFullSync(ctx)
	require.NoError(t, err)
	h.dest.FailDeletes[report.Outcomes[1].LocalID] = true

	rb, err := h.eng.Rollback(ctx, ledger.All())
	require.NoError(t, err)
	assert.Equal(t, 2, rb.Deleted)
	assert.Equal(t, 1, rb.Failed)
	assert.Equal(t, 3, rb.Pruned)
	assert.Empty(t, h.statuses(t))
	assert.Equal(t, 1, h.dest.Len())
}

func TestRollback_DateRange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, schema.Settings{}, enginetest.Entry("late", "Late"))
	// the clock ticks once at run start and once per ledger write
	h.clock = time.Date(2024, 1, 1, 23, 59, 57, 0, time.UTC)
	_, err := h.eng.RunFullSync(ctx)
	require.NoError(t, err)

	h.feed.Entries = []*schema.FeedEntry{enginetest.Entry("next", "Next")}
	h.clock = time.Date(2024, 1, 1, 23, 59, 58, 0, time.UTC)
	_, err = h.eng.RunFullSync(ctx)
	require.NoError(t, err)

	late, err := h.ledger.FindByExternalID("late")
	require.NoError(t, err)
	require.True(t, late.LastSyncedAt.Equal(time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)), "late synced at %v", late.LastSyncedAt)
	next, err := h.ledger.FindByExternalID("next")
	require.NoError(t, err)
	require.True(t, next.LastSyncedAt.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), "next synced at %v", next.LastSyncedAt)

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	scope, err := ledger.DateRange(day, day)
	require.NoError(t, err)

	report, err := h.eng.Rollback(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Pruned)
	assert.Equal(t, map[string]schema.Status{"next": schema.StatusImported}, h.statuses(t))
}
