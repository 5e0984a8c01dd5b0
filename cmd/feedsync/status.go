package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/feedsync/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "inspect",
	Short:   "Show sync ledger statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		stats, err := a.engine.GetStats(ctx)
		if err != nil {
			a.Close()
			fatal("%v", err)
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}

		cfg := a.store.Config()
		fmt.Println(ui.StatsBox(stats))
		fmt.Printf("   Feed:   %s\n", valueOr(cfg.Feed.URL, "(not configured)"))
		fmt.Printf("   Ledger: %s\n", cfg.Ledger.Path)
		fmt.Printf("   Config: %s\n", valueOr(a.store.Path(), "(defaults)"))
	},
}

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "inspect",
	Short:   "Show recently synced entries",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")
		if jsonOutput {
			format = "json"
		}

		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{})
		defer a.Close()

		records, err := a.engine.GetRecentLog(ctx, limit)
		if err != nil {
			a.Close()
			fatal("%v", err)
		}

		switch format {
		case "json":
			outputJSON(records)
		case "yaml":
			enc := yaml.NewEncoder(os.Stdout)
			if err := enc.Encode(records); err != nil {
				fatal("failed to encode yaml: %v", err)
			}
			_ = enc.Close()
		case "table":
			if len(records) == 0 {
				fmt.Println(ui.MutedStyle.Render("Nothing synced yet"))
				return
			}
			fmt.Println(ui.RecordTable(records))
		default:
			a.Close()
			fatal("unknown format %q (want table, json or yaml)", format)
		}
	},
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	logCmd.Flags().IntP("limit", "n", 0, "Number of entries (default 50)")
	logCmd.Flags().StringP("format", "f", "table", "Output format: table, json or yaml")

	rootCmd.AddCommand(statusCmd, logCmd)
}
