package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/schema"
)

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(colorBorder))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// KindStyle colors an outcome kind.
func KindStyle(kind engine.Kind) lipgloss.Style {
	switch kind {
	case engine.KindImported, engine.KindUpdated:
		return SuccessStyle
	case engine.KindSkipped:
		return WarnStyle
	default:
		return ErrorStyle
	}
}

// StatusStyle colors a ledger status.
func StatusStyle(status schema.Status) lipgloss.Style {
	switch status {
	case schema.StatusImported, schema.StatusUpdated:
		return SuccessStyle
	case schema.StatusPending:
		return WarnStyle
	default:
		return ErrorStyle
	}
}

// OutcomeTable renders per-entry outcomes.
func OutcomeTable(outcomes []engine.ItemOutcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			KindStyle(o.Kind).Render(string(o.Kind)),
			truncate(o.Title, 48),
			localID(o.LocalID),
			truncate(o.Message, 60),
		})
	}
	return Table([]string{"Action", "Title", "Local ID", "Message"}, rows)
}

// RecordTable renders ledger rows.
func RecordTable(records []*schema.SyncRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			truncate(r.Title, 48),
			StatusStyle(r.Status).Render(string(r.Status)),
			localID(r.LocalRecordID),
			strconv.Itoa(r.RetryCount),
			r.LastSyncedAt.Local().Format("2006-01-02 15:04"),
			truncate(r.ErrorMessage, 40),
		})
	}
	return Table([]string{"Title", "Status", "Local ID", "Retries", "Synced", "Error"}, rows)
}

// SyncSummary renders the headline of a full run.
func SyncSummary(report *engine.SyncReport) string {
	var b strings.Builder
	if report.Success {
		b.WriteString(SuccessStyle.Render("✓ " + report.Message))
	} else {
		b.WriteString(ErrorStyle.Render("✗ Sync failed: " + report.Error))
	}
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("%d errors, %d of %d entries processed in %s",
		report.Errors, report.Processed, report.TotalPosts, report.Duration.Round(time.Millisecond))))
	return b.String()
}

// BatchSummary renders the headline of one batch call.
func BatchSummary(report *engine.BatchReport) string {
	if !report.Success {
		return ErrorStyle.Render("✗ Batch failed: " + report.Error)
	}
	line := fmt.Sprintf("%s %5.1f%%  offset %d → %d of %d",
		progressBar(report.ProgressPercentage, 20), report.ProgressPercentage,
		report.CurrentOffset, report.NextOffset, report.TotalPosts)
	if report.Message != "" {
		line += "  " + MutedStyle.Render(report.Message)
	}
	return line
}

// StatsBox renders ledger statistics.
func StatsBox(stats *schema.LedgerStats) string {
	last := "never"
	if stats.LastSyncAt != nil {
		last = stats.LastSyncAt.Local().Format("2006-01-02 15:04:05")
	}

	lines := []string{
		TitleStyle.Render("Sync ledger"),
		fmt.Sprintf("Total:     %d", stats.TotalCount),
		SuccessStyle.Render(fmt.Sprintf("Imported:  %d", stats.ImportedCount)),
		SuccessStyle.Render(fmt.Sprintf("Updated:   %d", stats.UpdatedCount)),
		ErrorStyle.Render(fmt.Sprintf("Errors:    %d", stats.ErrorCount)),
		WarnStyle.Render(fmt.Sprintf("Pending:   %d", stats.PendingCount)),
		MutedStyle.Render("Last sync: " + last),
	}
	return BoxStyle.Render(strings.Join(lines, "\n"))
}

func progressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return SuccessStyle.Render(strings.Repeat("█", filled)) + MutedStyle.Render(strings.Repeat("░", width-filled))
}

func localID(id int64) string {
	if id <= 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
