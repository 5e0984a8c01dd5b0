// Package feed fetches RSS and Atom feeds and converts their items into
// feed entries with stable ids.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"github.com/steveyegge/feedsync/internal/schema"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "feedsync/1.0"
)

// Option configures the Source.
type Option func(*Source)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		s.httpClient = client
	}
}

// WithUserAgent sets the User-Agent sent with feed requests.
func WithUserAgent(ua string) Option {
	return func(s *Source) {
		s.userAgent = ua
	}
}

// WithTimeout bounds each fetch, including content extraction.
func WithTimeout(d time.Duration) Option {
	return func(s *Source) {
		s.timeout = d
	}
}

// WithExtraction enables fetching the linked page for items that carry
// neither content nor description.
func WithExtraction(enabled bool) Option {
	return func(s *Source) {
		s.extract = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// Source fetches feeds over HTTP.
type Source struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
	extract    bool
	logger     *log.Logger
}

// NewSource creates a feed Source.
func NewSource(opts ...Option) *Source {
	s := &Source{
		httpClient: &http.Client{},
		userAgent:  DefaultUserAgent,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(os.Stderr, "[feed] ", log.LstdFlags)
	}
	return s
}

// FetchEntries fetches and parses feedURL, returning its items in feed order.
func (s *Source) FetchEntries(ctx context.Context, feedURL string) ([]*schema.FeedEntry, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	parser := gofeed.NewParser()
	parser.Client = s.httpClient
	parser.UserAgent = s.userAgent

	parsed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	entries := make([]*schema.FeedEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry := toEntry(item)
		if entry.ID == "" {
			s.logger.Printf("Skipping item without guid or link: %q", item.Title)
			continue
		}
		if entry.RawContent == "" && s.extract && entry.Link != "" {
			s.extractContent(ctx, entry)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// extractContent fills RawContent from the linked page. Failures leave the
// entry unchanged.
func (s *Source) extractContent(ctx context.Context, entry *schema.FeedEntry) {
	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return
	}

	article, err := readability.FromURL(entry.Link, timeout)
	if err != nil {
		s.logger.Printf("Failed to extract %s: %v", entry.Link, err)
		return
	}
	entry.RawContent = article.Content
}

func toEntry(item *gofeed.Item) *schema.FeedEntry {
	// Use GUID if available, otherwise generate from URL
	id := strings.TrimSpace(item.GUID)
	if id == "" && item.Link != "" {
		id = GenerateID(item.Link)
	}

	var publishedAt time.Time
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		publishedAt = *item.UpdatedParsed
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	return &schema.FeedEntry{
		ID:          id,
		Title:       item.Title,
		RawContent:  body,
		Link:        item.Link,
		PublishedAt: publishedAt,
	}
}

// GenerateID derives a stable id from an item link.
func GenerateID(link string) string {
	hash := sha256.Sum256([]byte(link))
	return hex.EncodeToString(hash[:])[:16]
}
