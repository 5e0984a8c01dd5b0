package ledger

import (
	"fmt"
	"time"
)

// ScopeKind selects which ledger rows a rollback targets.
type ScopeKind string

const (
	// ScopeAll targets every row.
	ScopeAll ScopeKind = "all"
	// ScopeFailed targets rows with status=error.
	ScopeFailed ScopeKind = "failed"
	// ScopeDate targets rows synced within a calendar-day range.
	ScopeDate ScopeKind = "date"
)

// Scope is a predicate over ledger rows.
type Scope struct {
	Kind ScopeKind `json:"type"`

	// From and To are calendar days, only used by ScopeDate.
	From time.Time `json:"date_from,omitempty"`
	To   time.Time `json:"date_to,omitempty"`
}

// All returns the scope matching every row.
func All() Scope { return Scope{Kind: ScopeAll} }

// FailedOnly returns the scope matching rows in error state.
func FailedOnly() Scope { return Scope{Kind: ScopeFailed} }

// DateRange returns the scope matching rows whose last sync falls on any day
// from the calendar day of from through the calendar day of to, inclusive.
// Day boundaries are taken in the location of from.
func DateRange(from, to time.Time) (Scope, error) {
	if from.IsZero() || to.IsZero() {
		return Scope{}, fmt.Errorf("date range requires both from and to")
	}
	s := Scope{Kind: ScopeDate, From: from, To: to}
	start, end := s.Bounds()
	if !end.After(start) {
		return Scope{}, fmt.Errorf("date range end %s is before start %s",
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return s, nil
}

// ParseScopeKind converts a rollback type string into a ScopeKind.
func ParseScopeKind(s string) (ScopeKind, error) {
	switch ScopeKind(s) {
	case ScopeAll, ScopeFailed, ScopeDate:
		return ScopeKind(s), nil
	}
	return "", fmt.Errorf("invalid rollback type %q (want all, failed or date)", s)
}

// Bounds returns the half-open interval [start, end) covered by a date scope:
// from 00:00:00 on the first day up to, but excluding, 00:00:00 on the day after To.
func (s Scope) Bounds() (start, end time.Time) {
	loc := s.From.Location()
	fy, fm, fd := s.From.Date()
	ty, tm, td := s.To.In(loc).Date()
	start = time.Date(fy, fm, fd, 0, 0, 0, 0, loc)
	end = time.Date(ty, tm, td, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	return start, end
}

// String returns a human-readable description of the scope.
func (s Scope) String() string {
	switch s.Kind {
	case ScopeAll:
		return "all"
	case ScopeFailed:
		return "failed"
	case ScopeDate:
		return fmt.Sprintf("date %s..%s", s.From.Format(time.DateOnly), s.To.Format(time.DateOnly))
	default:
		return "unknown"
	}
}

// where returns the SQL condition and arguments selecting rows in scope.
func (s Scope) where() (string, []interface{}, error) {
	switch s.Kind {
	case ScopeAll:
		return "1 = 1", nil, nil
	case ScopeFailed:
		return "status = ?", []interface{}{"error"}, nil
	case ScopeDate:
		start, end := s.Bounds()
		return "last_synced_at >= ? AND last_synced_at < ?",
			[]interface{}{formatTime(start), formatTime(end)}, nil
	default:
		return "", nil, fmt.Errorf("unknown scope %q", s.Kind)
	}
}
