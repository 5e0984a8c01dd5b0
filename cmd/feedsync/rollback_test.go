package main

import (
	"testing"
	"time"

	"github.com/steveyegge/feedsync/internal/ledger"
)

func TestParseScope(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	scope, err := parseScope("failed", "", "", now)
	if err != nil || scope.Kind != ledger.ScopeFailed {
		t.Fatalf("Expected failed scope, got %v (%v)", scope, err)
	}

	scope, err = parseScope("date", "2024-03-01", "yesterday", now)
	if err != nil {
		t.Fatalf("parseScope failed: %v", err)
	}
	start, end := scope.Bounds()
	if !start.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected start %v", start)
	}
	if !end.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected end %v", end)
	}

	for _, tc := range [][3]string{
		{"bogus", "", ""},
		{"date", "2024-03-01", ""},
		{"date", "2024-03-05", "2024-03-01"},
	} {
		if _, err := parseScope(tc[0], tc[1], tc[2], now); err == nil {
			t.Errorf("Expected error for %v", tc)
		}
	}
}

func TestDisplayAddr(t *testing.T) {
	if got := displayAddr(":8080"); got != "localhost:8080" {
		t.Errorf("Expected localhost:8080, got %s", got)
	}
	if got := displayAddr("127.0.0.1:9000"); got != "127.0.0.1:9000" {
		t.Errorf("Expected address unchanged, got %s", got)
	}
}
