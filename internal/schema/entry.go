package schema

import (
	"fmt"
	"time"
)

// FeedEntry is a single item of the upstream feed.
// It is produced by the feed source and never mutated afterwards.
type FeedEntry struct {
	// ID is the stable external identifier (GUID) of the entry.
	ID string `json:"id"`

	Title      string `json:"title"`
	RawContent string `json:"raw_content"`

	// Link is the canonical URL of the entry, if the feed provides one.
	Link string `json:"link,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// Validate checks that the entry can be keyed in the ledger.
func (e *FeedEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}
