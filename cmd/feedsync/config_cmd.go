package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/feedsync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage feedsync configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Write a starter feedsync.yaml with every option at its default value.

Any option can also be set through the environment, e.g. FEEDSYNC_FEED_URL
or FEEDSYNC_SYNC_MAX_RETRIES. A .env file in the working directory is loaded
on startup.`,
	Run: func(cmd *cobra.Command, args []string) {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")
		feedURL, _ := cmd.Flags().GetString("feed-url")

		cfg := config.Default()
		cfg.Feed.URL = feedURL

		if err := config.WriteFile(path, cfg, force); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")

		cfg, err := config.Load(configPath)
		if err != nil {
			fatal("%v", err)
		}
		if jsonOutput {
			format = "json"
		}

		switch format {
		case "yaml":
			err = config.EncodeYAML(os.Stdout, cfg)
		case "toml":
			err = config.EncodeTOML(os.Stdout, cfg)
		case "json":
			outputJSON(cfg)
		default:
			fatal("unknown format %q (want yaml, toml or json)", format)
		}
		if err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	configInitCmd.Flags().String("path", config.FileName+".yaml", "Where to write the config file")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configInitCmd.Flags().String("feed-url", "", "Feed URL to put in the file")

	configShowCmd.Flags().StringP("format", "f", "yaml", "Output format: yaml, toml or json")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
