package main

import (
	"context"
	"fmt"
	"log"

	"github.com/steveyegge/feedsync/internal/config"
	"github.com/steveyegge/feedsync/internal/dashboard"
	"github.com/steveyegge/feedsync/internal/destination/sqlitestore"
	"github.com/steveyegge/feedsync/internal/destination/wordpress"
	"github.com/steveyegge/feedsync/internal/engine"
	"github.com/steveyegge/feedsync/internal/events"
	"github.com/steveyegge/feedsync/internal/feed"
	"github.com/steveyegge/feedsync/internal/ledger"
	"github.com/steveyegge/feedsync/internal/logging"
	"github.com/steveyegge/feedsync/internal/mapper"
	"github.com/steveyegge/feedsync/internal/media"
	"github.com/steveyegge/feedsync/internal/runlock"
)

// appOptions selects optional components.
type appOptions struct {
	// dashboardPort > 0 starts a standalone dashboard; -1 creates one for mounting.
	dashboardPort int

	// observers are notified in addition to the configured ones.
	observers []engine.Observer
}

const mountedDashboard = -1

// app is a fully wired feedsync instance.
type app struct {
	store     *config.Store
	logs      *logging.Output
	ledger    *ledger.DB
	engine    *engine.Engine
	locker    runlock.Locker
	dashboard *dashboard.Server

	closers []func() error
}

// openApp loads configuration and wires every component it enables.
func openApp(ctx context.Context, opts appOptions) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = config.NewStore(configPath, nil)
	if err != nil {
		return nil, err
	}
	cfg := a.store.Config()

	a.logs, err = logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log output: %w", err)
	}
	a.closers = append(a.closers, a.logs.Close)

	a.ledger, err = ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	a.closers = append(a.closers, a.ledger.Close)
	if err := a.ledger.InitSchemaContext(ctx); err != nil {
		return nil, err
	}

	deps := engine.Deps{
		Ledger:   a.ledger,
		Mapper:   mapper.New(nil),
		Settings: a.store,
		Feed: feed.NewSource(
			feed.WithUserAgent(cfg.Feed.UserAgent),
			feed.WithTimeout(cfg.Feed.Timeout),
			feed.WithExtraction(cfg.Feed.Extract),
			feed.WithLogger(a.logs.Logger("feed")),
		),
	}

	var featured media.FeaturedImageSetter
	switch cfg.Destination.Kind {
	case config.DestinationWordPress:
		client := wordpress.NewClient(cfg.Destination.WordPress.URL,
			wordpress.WithCredentials(cfg.Destination.WordPress.User, cfg.Destination.WordPress.AppPassword),
			wordpress.WithContentType(cfg.Sync.DefaultContentType),
		)
		deps.Destination = client
		deps.Templates = client
	default:
		store, err := sqlitestore.Open(cfg.Destination.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open content store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		deps.Destination = store
		deps.Templates = store
		featured = store
	}

	if cfg.Media.Enabled {
		mediaOpts := []media.Option{media.WithLogger(a.logs.Logger("media"))}
		if featured != nil {
			mediaOpts = append(mediaOpts, media.WithFeaturedImage(featured))
		}
		importer, err := media.NewS3Importer(ctx, cfg.Media.Config, mediaOpts...)
		if err != nil {
			return nil, err
		}
		deps.Media = importer
	}

	if cfg.Events.Enabled {
		publisher, err := events.NewPublisher(cfg.Events.Config, a.logs.Logger("events"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, publisher.Close)
		deps.Observers = append(deps.Observers, publisher)
	}

	switch cfg.Lock.Backend {
	case config.LockRedis:
		redisLock, err := runlock.NewRedis(cfg.Lock.Redis, a.logs.Logger("lock"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisLock.Close)
		a.locker = redisLock
	default:
		a.locker = runlock.NewLocal()
	}

	if opts.dashboardPort != 0 {
		port := opts.dashboardPort
		if port == mountedDashboard {
			port = 0
		}
		a.dashboard = dashboard.NewServer(dashboard.Config{
			Port:   port,
			Stats:  a.ledger.AggregateStatsContext,
			Logger: a.logs.Logger("dashboard"),
		})
		a.closers = append(a.closers, a.dashboard.Stop)
		deps.Observers = append(deps.Observers, dashboard.NewHandler(a.dashboard, a.logs.Logger("dashboard")))
	}

	deps.Observers = append(deps.Observers, opts.observers...)

	a.engine, err = engine.New(deps, engine.Config{
		MaxRetries: cfg.Sync.MaxRetries,
		Logger:     a.logs.Logger("engine"),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// mustOpenApp is openApp for commands: it exits on failure.
func mustOpenApp(ctx context.Context, opts appOptions) *app {
	a, err := openApp(ctx, opts)
	if err != nil {
		fatal("%v", err)
	}
	return a
}

// logger returns a component logger on the app's log output.
func (a *app) logger(component string) *log.Logger {
	return a.logs.Logger(component)
}

// Close releases everything openApp acquired, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// withLock runs fn while holding the sync lock.
func (a *app) withLock(ctx context.Context, fn func() error) error {
	release, err := a.locker.Acquire(ctx, runlock.SyncLock)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
