package engine

import (
	"context"
	"fmt"

	"github.com/steveyegge/feedsync/internal/ledger"
)

// Rollback deletes the destination records of ledger rows in scope, then
// prunes those rows.
//
// Rows are pruned even when individual deletes fail; failures are logged and
// counted in the report. Rows without a destination record are pruned without
// a destination call.
func (e *Engine) Rollback(ctx context.Context, scope ledger.Scope) (*RollbackReport, error) {
	ids, err := e.deps.Ledger.LocalIDsContext(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to collect records for rollback: %w", err)
	}

	report := &RollbackReport{Scope: scope, Candidates: len(ids)}
	e.logger.Printf("Rolling back %d records (scope: %s)", len(ids), scope)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("rollback interrupted after %d deletes: %w", report.Deleted, err)
		}

		ok, err := e.deps.Destination.Delete(ctx, id)
		switch {
		case err != nil:
			report.Failed++
			e.logger.Printf("Failed to delete record %d: %v", id, &StoreError{Op: "delete", LocalID: id, Err: err})
		case !ok:
			report.Failed++
			e.logger.Printf("Record %d was not deleted", id)
		default:
			report.Deleted++
		}
	}

	pruned, err := e.deps.Ledger.DeleteWhereContext(ctx, scope)
	if err != nil {
		return report, fmt.Errorf("failed to prune ledger: %w", err)
	}
	report.Pruned = pruned
	report.Message = fmt.Sprintf("Rolled back %d posts", report.Deleted)
	if report.Failed > 0 {
		report.Message = fmt.Sprintf("%s (%d could not be deleted)", report.Message, report.Failed)
	}

	e.logger.Printf("Rollback complete: %s, %d ledger rows pruned", report.Message, pruned)
	for _, obs := range e.deps.Observers {
		obs.OnRollback(report)
	}

	return report, nil
}
