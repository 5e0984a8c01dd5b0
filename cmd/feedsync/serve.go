package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/steveyegge/feedsync/internal/api"
	"github.com/steveyegge/feedsync/internal/config"
	"github.com/steveyegge/feedsync/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Serve the HTTP control API and live dashboard",
	Long: `Start the HTTP control API.

Endpoints:
  POST /api/sync           full sync
  POST /api/sync/batch     one batch ({"offset": 0, "batch_size": 5})
  POST /api/retry          reset failed entries
  POST /api/rollback       {"type": "all|failed|date", "date_from": "...", "date_to": "..."}
  GET  /api/stats          ledger statistics
  GET  /api/failed         failed entries under the retry limit
  GET  /api/logs           recently synced entries
  GET  /api/health         liveness
  GET  /ws                 live progress (WebSocket)

Mutating requests return 409 while another run holds the sync lock.`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{dashboardPort: mountedDashboard})
		defer a.Close()

		cfg := a.store.Config()
		if addr == "" {
			addr = cfg.Server.Addr
		}

		gin.SetMode(gin.ReleaseMode)
		router := api.NewRouter(a.engine, api.Config{
			Locker:    a.locker,
			WebSocket: a.dashboard.WebSocketHandler(),
			BatchSize: cfg.Sync.BatchSize,
			Logger:    a.logger("api"),
		})

		server := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		watchConfig(ctx, a.store)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		fmt.Printf("API listening on %s\n", addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", displayAddr(addr))
		fmt.Println("\nPress Ctrl+C to stop...")

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Close()
				fatal("server failed: %v", err)
			}
		case <-ctx.Done():
		}

		fmt.Println("\nShutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.Close()
			fatal("during shutdown: %v", err)
		}
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "server",
	Short:   "Keep syncing on an interval",
	Long: `Run a sync cycle now and then every watch.interval.

Each cycle processes the feed in batches of sync.batch_size while holding the
sync lock, so it never overlaps a run started from the API or CLI. Editing the
config file changes the interval and starts a new cycle immediately.`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("dashboard-port")

		ctx, cancel := signalContext()
		defer cancel()

		a := mustOpenApp(ctx, appOptions{dashboardPort: port})
		defer a.Close()

		cfg := a.store.Config()
		d, err := daemon.New(a.engine, &daemon.Config{
			Interval:  cfg.Watch.Interval,
			BatchSize: cfg.Sync.BatchSize,
			Locker:    a.locker,
			Logger:    a.logger("daemon"),
		})
		if err != nil {
			a.Close()
			fatal("%v", err)
		}

		a.store.OnReload(func(c config.Config) {
			d.SetInterval(c.Watch.Interval)
			d.Trigger()
		})
		watchConfig(ctx, a.store)

		if a.dashboard != nil {
			if err := a.dashboard.Start(); err != nil {
				a.Close()
				fatal("failed to start dashboard: %v", err)
			}
			fmt.Printf("Dashboard: ws://%s/ws\n", displayAddr(a.dashboard.Addr()))
		}

		if err := d.Start(ctx); err != nil {
			a.Close()
			fatal("%v", err)
		}
	},
}

// watchConfig reloads the store on file changes until ctx is done.
func watchConfig(ctx context.Context, store *config.Store) {
	if store.Path() == "" {
		return
	}
	go func() {
		if err := store.Watch(ctx); err != nil {
			fmt.Printf("Warning: config reload disabled: %v\n", err)
		}
	}()
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	watchCmd.Flags().IntP("dashboard-port", "p", 0, "Serve the live dashboard on this port (0 = disabled)")

	rootCmd.AddCommand(serveCmd, watchCmd)
}
