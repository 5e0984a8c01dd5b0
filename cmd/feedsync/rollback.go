package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/steveyegge/feedsync/internal/dateparse"
	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/ui"
)

var rollbackCmd = &cobra.Command{
	Use:     "rollback",
	GroupID: "sync",
	Short:   "Delete synced records and forget them",
	Long: `Delete destination records created by feedsync and remove their ledger rows.

Scopes:
  --type all       every synced entry
  --type failed    entries currently in error state
  --type date      entries last synced between --from and --to (inclusive days)

Dates accept YYYY-MM-DD or expressions such as "yesterday" or "3 days ago".
Ledger rows in scope are removed even when some deletions fail.
Use --backup to export the ledger as JSONL first; restore it with
"feedsync ledger import".

Examples:
  feedsync rollback --type failed
  feedsync rollback --type date --from 2024-03-01 --to yesterday --yes`,
	Run: func(cmd *cobra.Command, args []string) {
		typ, _ := cmd.Flags().GetString("type")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		yes, _ := cmd.Flags().GetBool("yes")
		backup, _ := cmd.Flags().GetBool("backup")

		scope, err := parseScope(typ, from, to, time.Now())
		if err != nil {
			fatal("%v", err)
		}

		if !yes {
			if !ui.IsTerminal(os.Stdin) {
				fatal("refusing to roll back without confirmation (use --yes)")
			}
			confirmed, err := confirmRollback(scope)
			if err != nil {
				fatal("%v", err)
			}
			if !confirmed {
				fmt.Println("Rollback cancelled")
				return
			}
		}

		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		var report *engine.RollbackReport
		err = a.withLock(ctx, func() error {
			if backup {
				path := a.ledger.BackupPath()
				n, err := a.ledger.ExportFile(ctx, path)
				if err != nil {
					return fmt.Errorf("failed to back up ledger: %w", err)
				}
				if !jsonOutput {
					fmt.Println(ui.MutedStyle.Render(fmt.Sprintf("Backed up %d ledger rows to %s", n, path)))
				}
			}
			var err error
			report, err = a.engine.Rollback(ctx, scope)
			return err
		})
		if err != nil {
			a.Close()
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(report)
			return
		}
		style := ui.SuccessStyle
		if report.Failed > 0 {
			style = ui.WarnStyle
		}
		fmt.Println(style.Render("✓ " + report.Message))
		fmt.Println(ui.MutedStyle.Render(fmt.Sprintf("%d ledger rows removed", report.Pruned)))
	},
}

func parseScope(typ, from, to string, now time.Time) (ledger.Scope, error) {
	kind, err := ledger.ParseScopeKind(typ)
	if err != nil {
		return ledger.Scope{}, err
	}

	switch kind {
	case ledger.ScopeAll:
		return ledger.All(), nil
	case ledger.ScopeFailed:
		return ledger.FailedOnly(), nil
	}

	if from == "" || to == "" {
		return ledger.Scope{}, fmt.Errorf("--from and --to are required for --type date")
	}
	fromDay, err := dateparse.Day(from, now)
	if err != nil {
		return ledger.Scope{}, err
	}
	toDay, err := dateparse.Day(to, now)
	if err != nil {
		return ledger.Scope{}, err
	}
	return ledger.DateRange(fromDay, toDay)
}

func confirmRollback(scope ledger.Scope) (bool, error) {
	var confirmed bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Roll back %s?", scope)).
		Description("Destination records in scope will be permanently deleted.").
		Affirmative("Delete").
		Negative("Cancel").
		Value(&confirmed).
		Run()
	if err != nil {
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	return confirmed, nil
}

func init() {
	rollbackCmd.Flags().String("type", "", "Scope: all, failed or date (required)")
	rollbackCmd.Flags().String("from", "", "First day of a date rollback")
	rollbackCmd.Flags().String("to", "", "Last day of a date rollback")
	rollbackCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
	rollbackCmd.Flags().Bool("backup", false, "Export the ledger as JSONL before rolling back")
	_ = rollbackCmd.MarkFlagRequired("type")

	rootCmd.AddCommand(rollbackCmd)
}
