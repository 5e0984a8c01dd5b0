// Package dateparse turns user-entered day expressions into calendar days.
package dateparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DayLayout is the canonical day format.
const DayLayout = "2006-01-02"

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Day parses s as a calendar day relative to now. It accepts DayLayout
// dates and natural expressions such as "yesterday" or "3 days ago".
// The result is midnight of that day in now's location.
func Day(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := time.ParseInLocation(DayLayout, s, now.Location()); err == nil {
		return t, nil
	}

	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q (use %s or e.g. \"yesterday\")", s, DayLayout)
	}

	t := r.Time.In(now.Location())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location()), nil
}
