// Package config loads feedsync configuration from file, environment and defaults.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/feedsync/internal/events"
	"github.com/steveyegge/feedsync/internal/media"
	"github.com/steveyegge/feedsync/internal/runlock"
	"github.com/steveyegge/feedsync/internal/schema"
)

// EnvPrefix prefixes environment overrides, e.g. FEEDSYNC_FEED_URL.
const EnvPrefix = "FEEDSYNC"

// FileName is the config file base name searched when no path is given.
const FileName = "feedsync"

// Destination kinds.
const (
	DestinationSQLite    = "sqlite"
	DestinationWordPress = "wordpress"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config is the full feedsync configuration.
type Config struct {
	Feed        FeedConfig        `mapstructure:"feed" yaml:"feed" toml:"feed"`
	Sync        SyncConfig        `mapstructure:"sync" yaml:"sync" toml:"sync"`
	Ledger      LedgerConfig      `mapstructure:"ledger" yaml:"ledger" toml:"ledger"`
	Destination DestinationConfig `mapstructure:"destination" yaml:"destination" toml:"destination"`
	Media       MediaConfig       `mapstructure:"media" yaml:"media" toml:"media"`
	Lock        LockConfig        `mapstructure:"lock" yaml:"lock" toml:"lock"`
	Events      EventsConfig      `mapstructure:"events" yaml:"events" toml:"events"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server" toml:"server"`
	Watch       WatchConfig       `mapstructure:"watch" yaml:"watch" toml:"watch"`
	Log         LogConfig         `mapstructure:"log" yaml:"log" toml:"log"`
}

// FeedConfig describes the upstream feed.
type FeedConfig struct {
	URL       string        `mapstructure:"url" yaml:"url" toml:"url"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent" toml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" toml:"timeout"`

	// Extract fetches full article content for entries without a body.
	Extract bool `mapstructure:"extract" yaml:"extract" toml:"extract"`
}

// SyncConfig holds mapping defaults and engine tuning.
type SyncConfig struct {
	DefaultAuthor      int64                    `mapstructure:"default_author" yaml:"default_author" toml:"default_author"`
	DefaultStatus      string                   `mapstructure:"default_status" yaml:"default_status" toml:"default_status"`
	DefaultContentType string                   `mapstructure:"default_content_type" yaml:"default_content_type" toml:"default_content_type"`
	CategoryMappings   []schema.CategoryMapping `mapstructure:"category_mapping" yaml:"category_mapping" toml:"category_mapping"`
	MaxRetries         int                      `mapstructure:"max_retries" yaml:"max_retries" toml:"max_retries"`
	BatchSize          int                      `mapstructure:"batch_size" yaml:"batch_size" toml:"batch_size"`
}

// LedgerConfig locates the sync ledger database.
type LedgerConfig struct {
	Path string `mapstructure:"path" yaml:"path" toml:"path"`
}

// DestinationConfig selects where synced records are written.
type DestinationConfig struct {
	Kind      string          `mapstructure:"kind" yaml:"kind" toml:"kind"`
	Path      string          `mapstructure:"path" yaml:"path" toml:"path"`
	WordPress WordPressConfig `mapstructure:"wordpress" yaml:"wordpress" toml:"wordpress"`
}

// WordPressConfig holds REST API credentials.
type WordPressConfig struct {
	URL         string `mapstructure:"url" yaml:"url" toml:"url"`
	User        string `mapstructure:"user" yaml:"user" toml:"user"`
	AppPassword string `mapstructure:"app_password" yaml:"app_password" toml:"app_password"`
}

// MediaConfig enables image import to S3.
type MediaConfig struct {
	Enabled      bool `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	media.Config `mapstructure:",squash" yaml:",inline"`
}

// LockConfig selects the run lock backend.
type LockConfig struct {
	Backend string              `mapstructure:"backend" yaml:"backend" toml:"backend"`
	Redis   runlock.RedisConfig `mapstructure:"redis" yaml:"redis" toml:"redis"`
}

// EventsConfig enables Kafka event publishing.
type EventsConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled" toml:"enabled"`
	events.Config `mapstructure:",squash" yaml:",inline"`
}

// ServerConfig configures the HTTP control API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" toml:"addr"`
}

// WatchConfig configures the watch daemon.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" toml:"interval"`
}

// LogConfig configures log output. An empty File logs to stderr only.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Feed: FeedConfig{
			UserAgent: "feedsync/1.0",
			Timeout:   30 * time.Second,
		},
		Sync: SyncConfig{
			DefaultAuthor:      1,
			DefaultStatus:      "draft",
			DefaultContentType: "post",
			MaxRetries:         3,
			BatchSize:          5,
		},
		Ledger:      LedgerConfig{Path: "feedsync.db"},
		Destination: DestinationConfig{Kind: DestinationSQLite, Path: "content.db"},
		Media:       MediaConfig{Config: media.Config{Prefix: "feedsync/", Region: "us-east-1"}},
		Lock: LockConfig{
			Backend: LockLocal,
			Redis: runlock.RedisConfig{
				Addr:   "localhost:6379",
				Prefix: runlock.DefaultRedisPrefix,
				TTL:    runlock.DefaultRedisTTL,
			},
		},
		Events: EventsConfig{Config: events.Config{
			Brokers:  []string{"localhost:9092"},
			Topic:    "feedsync.events",
			ClientID: "feedsync",
		}},
		Server: ServerConfig{Addr: ":8080"},
		Watch:  WatchConfig{Interval: 15 * time.Minute},
		Log:    LogConfig{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("feed.url", d.Feed.URL)
	v.SetDefault("feed.user_agent", d.Feed.UserAgent)
	v.SetDefault("feed.timeout", d.Feed.Timeout)
	v.SetDefault("feed.extract", d.Feed.Extract)

	v.SetDefault("sync.default_author", d.Sync.DefaultAuthor)
	v.SetDefault("sync.default_status", d.Sync.DefaultStatus)
	v.SetDefault("sync.default_content_type", d.Sync.DefaultContentType)
	v.SetDefault("sync.max_retries", d.Sync.MaxRetries)
	v.SetDefault("sync.batch_size", d.Sync.BatchSize)

	v.SetDefault("ledger.path", d.Ledger.Path)

	v.SetDefault("destination.kind", d.Destination.Kind)
	v.SetDefault("destination.path", d.Destination.Path)
	v.SetDefault("destination.wordpress.url", "")
	v.SetDefault("destination.wordpress.user", "")
	v.SetDefault("destination.wordpress.app_password", "")

	v.SetDefault("media.enabled", d.Media.Enabled)
	v.SetDefault("media.bucket", d.Media.Bucket)
	v.SetDefault("media.prefix", d.Media.Prefix)
	v.SetDefault("media.region", d.Media.Region)
	v.SetDefault("media.endpoint", d.Media.Endpoint)
	v.SetDefault("media.public_base_url", d.Media.PublicBaseURL)

	v.SetDefault("lock.backend", d.Lock.Backend)
	v.SetDefault("lock.redis.addr", d.Lock.Redis.Addr)
	v.SetDefault("lock.redis.password", "")
	v.SetDefault("lock.redis.db", 0)
	v.SetDefault("lock.redis.prefix", d.Lock.Redis.Prefix)
	v.SetDefault("lock.redis.ttl", d.Lock.Redis.TTL)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.client_id", d.Events.ClientID)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("watch.interval", d.Watch.Interval)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Load reads configuration from path (or the default search locations when
// path is empty), applies FEEDSYNC_* environment overrides and validates it.
func Load(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

// load returns the config and the file it was read from ("" for none).
func load(path string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "feedsync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, "", fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Sync.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_retries must be positive"))
	}
	if c.Sync.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("sync.batch_size must be positive"))
	}
	if c.Ledger.Path == "" {
		errs = append(errs, fmt.Errorf("ledger.path is required"))
	}

	switch c.Destination.Kind {
	case DestinationSQLite:
		if c.Destination.Path == "" {
			errs = append(errs, fmt.Errorf("destination.path is required for sqlite"))
		}
	case DestinationWordPress:
		if c.Destination.WordPress.URL == "" {
			errs = append(errs, fmt.Errorf("destination.wordpress.url is required for wordpress"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown destination.kind %q", c.Destination.Kind))
	}

	if c.Media.Enabled && c.Media.Bucket == "" {
		errs = append(errs, fmt.Errorf("media.bucket is required when media is enabled"))
	}
	if c.Events.Enabled && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		errs = append(errs, fmt.Errorf("events.brokers and events.topic are required when events are enabled"))
	}

	switch c.Lock.Backend {
	case LockLocal, LockRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown lock.backend %q", c.Lock.Backend))
	}

	if c.Watch.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watch.interval must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Settings returns the sync settings the engine consumes.
func (c *Config) Settings() schema.Settings {
	mappings := make([]schema.CategoryMapping, len(c.Sync.CategoryMappings))
	copy(mappings, c.Sync.CategoryMappings)

	return schema.Settings{
		FeedURL:            c.Feed.URL,
		DefaultAuthor:      c.Sync.DefaultAuthor,
		DefaultStatus:      c.Sync.DefaultStatus,
		DefaultContentType: c.Sync.DefaultContentType,
		CategoryMappings:   mappings,
	}
}

// EncodeYAML writes cfg as YAML.
func EncodeYAML(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// EncodeTOML writes cfg as TOML.
func EncodeTOML(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode toml: %w", err)
	}
	return nil
}

// WriteFile writes cfg as YAML to path. An existing file is only replaced
// when force is set.
func WriteFile(path string, cfg *Config, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
		}
		return fmt.Errorf("failed to create config file: %w", err)
	}

	if err := EncodeYAML(f, cfg); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
