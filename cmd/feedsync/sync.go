package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/ui"
)

// progressPrinter prints one line per processed entry.
type progressPrinter struct{}

func (progressPrinter) OnItemProcessed(o engine.ItemOutcome) {
	fmt.Printf("  %s %s\n", ui.KindStyle(o.Kind).Render(fmt.Sprintf("%-8s", o.Kind)), o.Message)
}
func (progressPrinter) OnSyncComplete(*engine.SyncReport)   {}
func (progressPrinter) OnBatchComplete(*engine.BatchReport) {}
func (progressPrinter) OnRollback(*engine.RollbackReport)   {}

func progressObservers() []engine.Observer {
	if jsonOutput {
		return nil
	}
	return []engine.Observer{progressPrinter{}}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run a full sync of the feed",
	Long: `Fetch the feed and process every entry in feed order.

New entries are created in the destination, known entries are updated (and
set back to draft), and entries that failed too many times in a row are
skipped. Per-entry failures never stop the run.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{observers: progressObservers()})
		defer a.Close()

		var report *engine.SyncReport
		err := a.withLock(ctx, func() error {
			var err error
			report, err = a.engine.RunFullSync(ctx)
			return err
		})

		if jsonOutput && report != nil {
			outputJSON(report)
		} else if report != nil {
			fmt.Println()
			fmt.Println(ui.SyncSummary(report))
		}
		if err != nil {
			a.Close()
			fatal("%v", err)
		}
	},
}

var batchCmd = &cobra.Command{
	Use:     "batch",
	GroupID: "sync",
	Short:   "Process one batch of the feed (or all batches with --all)",
	Long: `Process the entries [offset, offset+size) of the feed.

Each call re-fetches the feed. Continue from the reported next offset until
no entries remain; --all does this automatically.`,
	Run: func(cmd *cobra.Command, args []string) {
		offset, _ := cmd.Flags().GetInt("offset")
		size, _ := cmd.Flags().GetInt("size")
		all, _ := cmd.Flags().GetBool("all")

		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{observers: progressObservers()})
		defer a.Close()

		if size <= 0 {
			size = a.store.Config().Sync.BatchSize
		}

		var reports []*engine.BatchReport
		err := a.withLock(ctx, func() error {
			for {
				report, err := a.engine.RunBatchSync(ctx, size, offset)
				if report != nil {
					reports = append(reports, report)
					if !jsonOutput {
						fmt.Println(ui.BatchSummary(report))
					}
				}
				if err != nil {
					return err
				}
				if !all || !report.HasMore {
					return nil
				}
				offset = report.NextOffset
			}
		})

		if jsonOutput {
			if all {
				outputJSON(reports)
			} else if len(reports) > 0 {
				outputJSON(reports[0])
			}
		}
		if err != nil {
			a.Close()
			fatal("%v", err)
		}
	},
}

var retryCmd = &cobra.Command{
	Use:     "retry",
	GroupID: "sync",
	Short:   "Reset failed entries so the next sync retries them",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		var report *engine.RetryReport
		err := a.withLock(ctx, func() error {
			var err error
			report, err = a.engine.RetryFailedAll(ctx)
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
		fmt.Println(ui.SuccessStyle.Render("✓ " + report.Message))
	},
}

var failedCmd = &cobra.Command{
	Use:     "failed",
	GroupID: "inspect",
	Short:   "List failed entries still under the retry limit",
	Run: func(cmd *cobra.Command, args []string) {
		maxRetries, _ := cmd.Flags().GetInt("max-retries")

		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		records, err := a.engine.GetFailedNeedingRetry(ctx, maxRetries)
		if err != nil {
			a.Close()
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(records)
			return
		}
		if len(records) == 0 {
			fmt.Println(ui.SuccessStyle.Render("No failed entries"))
			return
		}
		fmt.Println(ui.RecordTable(records))
	},
}

func init() {
	batchCmd.Flags().Int("offset", 0, "Index of the first entry to process")
	batchCmd.Flags().Int("size", 0, "Entries per batch (default: sync.batch_size)")
	batchCmd.Flags().Bool("all", false, "Keep going until the feed is exhausted")

	failedCmd.Flags().Int("max-retries", 0, "Retry limit (default: sync.max_retries)")

	rootCmd.AddCommand(syncCmd, batchCmd, retryCmd, failedCmd)
}
