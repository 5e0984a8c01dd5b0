// Command feedsync mirrors a newsletter feed into a content store.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/steveyegge/feedsync/internal/ui"
)

var (
	configPath string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "feedsync",
	Short: "Idempotent, resumable feed sync",
	Long: `feedsync imports entries from an RSS/Atom feed into a content store and keeps
them in step: new entries are created, changed entries are updated as drafts,
and failing entries are retried a bounded number of times.

Every entry is tracked in a local sync ledger, so runs can be repeated,
resumed in batches, retried, or rolled back.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./feedsync.yaml or ~/.config/feedsync/feedsync.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection commands:"},
		&cobra.Group{ID: "server", Title: "Long-running commands:"},
	)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	ui.Init(os.Stdout)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatal prints an error and exits.
func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// outputJSON writes v as indented JSON to stdout.
func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal("failed to encode JSON: %v", err)
	}
}
