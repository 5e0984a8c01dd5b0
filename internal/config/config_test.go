package config

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/feedsync/internal/schema"
)

const sampleYAML = `feed:
  url: https://example.substack.com/feed
  timeout: 10s
sync:
  default_status: publish
  default_content_type: reports
  max_retries: 5
  category_mapping:
    - keyword: marketing
      category: 5
    - keyword: growth
      category: 9
destination:
  kind: sqlite
  path: content.db
watch:
  interval: 2m
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func isolateSearchPaths(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(home))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	isolateSearchPaths(t)

	cfg, err := Load("")
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Sync.MaxRetries, cfg.Sync.MaxRetries)
	assert.Equal(t, def.Sync.BatchSize, cfg.Sync.BatchSize)
	assert.Equal(t, DestinationSQLite, cfg.Destination.Kind)
	assert.Equal(t, LockLocal, cfg.Lock.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Watch.Interval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Events.Brokers)
	assert.Empty(t, cfg.Feed.URL)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, "feedsync.yaml", sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.substack.com/feed", cfg.Feed.URL)
	assert.Equal(t, 10*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Watch.Interval)
	assert.Equal(t, []schema.CategoryMapping{
		{Keyword: "marketing", CategoryID: 5},
		{Keyword: "growth", CategoryID: 9},
	}, cfg.Sync.CategoryMappings)

	// Unset keys keep their defaults
	assert.Equal(t, "feedsync.db", cfg.Ledger.Path)
}

func TestLoad_TOMLFile(t *testing.T) {
	path := writeConfig(t, "feedsync.toml", `
[feed]
url = "https://toml.example/feed"

[media]
enabled = true
bucket = "images"
public_base_url = "https://cdn.example"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://toml.example/feed", cfg.Feed.URL)
	assert.True(t, cfg.Media.Enabled)
	assert.Equal(t, "images", cfg.Media.Bucket)
	assert.Equal(t, "https://cdn.example", cfg.Media.PublicBaseURL)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "feedsync.yaml", sampleYAML)
	t.Setenv("FEEDSYNC_FEED_URL", "https://env.example/feed")
	t.Setenv("FEEDSYNC_SYNC_MAX_RETRIES", "7")
	t.Setenv("FEEDSYNC_LOCK_BACKEND", "redis")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example/feed", cfg.Feed.URL)
	assert.Equal(t, 7, cfg.Sync.MaxRetries)
	assert.Equal(t, LockRedis, cfg.Lock.Backend)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, "feedsync.yaml", `
destination:
  kind: ftp
sync:
  batch_size: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown destination.kind")
	assert.Contains(t, err.Error(), "sync.batch_size")
}

func TestValidate_RequiredSections(t *testing.T) {
	cfg := Default()
	cfg.Destination.Kind = DestinationWordPress
	cfg.Media.Enabled = true
	cfg.Events.Enabled = true
	cfg.Events.Topic = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destination.wordpress.url")
	assert.Contains(t, err.Error(), "media.bucket")
	assert.Contains(t, err.Error(), "events.brokers")

	require.NoError(t, Default().Validate())
}

func TestSettings_CopiesMappings(t *testing.T) {
	cfg := Default()
	cfg.Feed.URL = "https://example.com/feed"
	cfg.Sync.CategoryMappings = []schema.CategoryMapping{{Keyword: "a", CategoryID: 1}}

	settings := cfg.Settings()
	settings.CategoryMappings[0].CategoryID = 99

	assert.Equal(t, "https://example.com/feed", settings.FeedURL)
	assert.Equal(t, int64(1), settings.DefaultAuthor)
	assert.Equal(t, int64(1), cfg.Sync.CategoryMappings[0].CategoryID)
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedsync.yaml")
	cfg := Default()
	cfg.Feed.URL = "https://roundtrip.example/feed"
	cfg.Sync.CategoryMappings = []schema.CategoryMapping{{Keyword: "ai", CategoryID: 3}}

	require.NoError(t, WriteFile(path, cfg, false))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Feed.URL, loaded.Feed.URL)
	assert.Equal(t, cfg.Sync.CategoryMappings, loaded.Sync.CategoryMappings)
	assert.Equal(t, cfg.Watch.Interval, loaded.Watch.Interval)

	// Refuses to clobber without force
	err = WriteFile(path, cfg, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, WriteFile(path, cfg, true))
}

func TestEncodeTOML(t *testing.T) {
	cfg := Default()
	cfg.Feed.URL = "https://toml.example/feed"

	var buf bytes.Buffer
	require.NoError(t, EncodeTOML(&buf, cfg))

	out := buf.String()
	assert.Contains(t, out, "[feed]")
	assert.Contains(t, out, `url = "https://toml.example/feed"`)
	assert.Contains(t, out, "[lock.redis]")
}

func TestEncodeYAML_InlinesSections(t *testing.T) {
	cfg := Default()
	cfg.Media.Bucket = "images"

	var buf bytes.Buffer
	require.NoError(t, EncodeYAML(&buf, cfg))

	out := buf.String()
	assert.Contains(t, out, "bucket: images")
	assert.False(t, strings.Contains(out, "config:"), "embedded sections should be inlined")
}

func TestStore_SettingsAndReload(t *testing.T) {
	path := writeConfig(t, "feedsync.yaml", sampleYAML)

	store, err := NewStore(path, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())
	assert.Equal(t, "https://example.substack.com/feed", store.Settings().FeedURL)

	var reloaded []Config
	store.OnReload(func(c Config) { reloaded = append(reloaded, c) })

	updated := strings.Replace(sampleYAML, "example.substack.com", "other.substack.com", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, store.Reload())

	assert.Equal(t, "https://other.substack.com/feed", store.Settings().FeedURL)
	require.Len(t, reloaded, 1)
	assert.Equal(t, "https://other.substack.com/feed", reloaded[0].Feed.URL)

	// A broken file leaves the previous configuration in place
	require.NoError(t, os.WriteFile(path, []byte("destination:\n  kind: nope\n"), 0o644))
	require.Error(t, store.Reload())
	assert.Equal(t, "https://other.substack.com/feed", store.Settings().FeedURL)
}

func TestStore_StaticCannotReload(t *testing.T) {
	store := NewStaticStore(Default())
	assert.Empty(t, store.Path())
	require.Error(t, store.Reload())
	require.Error(t, store.Watch(context.Background()))
}

func TestStore_Watch(t *testing.T) {
	path := writeConfig(t, "feedsync.yaml", sampleYAML)

	store, err := NewStore(path, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	store.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	updated := strings.Replace(sampleYAML, "example.substack.com", "watched.substack.com", 1)

	// Keep rewriting until the watcher is registered and picks up a change
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(updated), 0o644)
		return store.Settings().FeedURL == "https://watched.substack.com/feed"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
