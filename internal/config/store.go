package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/steveyegge/feedsync/internal/schema"
)

// DefaultDebounce batches rapid writes to the config file into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Store holds the live configuration and reloads it when the file changes.
// It implements engine.SettingsProvider.
type Store struct {
	mu       sync.RWMutex
	cfg      *Config
	path     string
	onReload []func(Config)

	debounce time.Duration
	logger   *log.Logger
}

// NewStore loads configuration from path (or the default search locations)
// and returns a Store holding it.
func NewStore(path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[config] ", log.LstdFlags)
	}

	cfg, used, err := load(path)
	if err != nil {
		return nil, err
	}
	if used != "" {
		if abs, err := filepath.Abs(used); err == nil {
			used = abs
		}
	}

	return &Store{
		cfg:      cfg,
		path:     used,
		debounce: DefaultDebounce,
		logger:   logger,
	}, nil
}

// NewStaticStore wraps cfg in a Store that has no backing file.
func NewStaticStore(cfg *Config) *Store {
	return &Store{
		cfg:      cfg,
		debounce: DefaultDebounce,
		logger:   log.New(os.Stderr, "[config] ", log.LstdFlags),
	}
}

// Path returns the config file in use, or "" when running on defaults.
func (s *Store) Path() string {
	return s.path
}

// Config returns a copy of the current configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cfg
}

// Settings returns the current sync settings.
func (s *Store) Settings() schema.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Settings()
}

// OnReload registers fn to run after every successful reload.
func (s *Store) OnReload(fn func(Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Reload re-reads the config file. The previous configuration is kept when
// the new one fails to load or validate.
func (s *Store) Reload() error {
	if s.path == "" {
		return fmt.Errorf("no config file to reload")
	}

	cfg, _, err := load(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	callbacks := append([]func(Config){}, s.onReload...)
	s.mu.Unlock()

	for _, fn := range callbacks {
		fn(*cfg)
	}
	return nil
}

// Watch reloads the configuration whenever the config file changes.
// It blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return fmt.Errorf("no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	s.logger.Printf("Watching config: %s", s.path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending = time.After(s.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Printf("Watcher error: %v", err)

		case <-pending:
			pending = nil
			if err := s.Reload(); err != nil {
				s.logger.Printf("Warning: keeping previous config: %v", err)
				continue
			}
			s.logger.Println("Config reloaded")
		}
	}
}
