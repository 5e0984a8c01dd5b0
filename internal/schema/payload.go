package schema

import "time"

// Destination record statuses used by the mapper and the engine.
const (
	PostStatusDraft   = "draft"
	PostStatusPublish = "publish"
)

// DefaultAuthorID is used when no default author is configured.
const DefaultAuthorID int64 = 1

// Payload is the destination record built from a FeedEntry.
type Payload struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Status      string    `json:"status"`
	Author      int64     `json:"author"`
	PublishDate time.Time `json:"publish_date"`
	ContentType string    `json:"content_type"`

	// CategoryIDs are term ids in Taxonomy, in classification order.
	CategoryIDs []int64 `json:"category_ids,omitempty"`

	// Taxonomy is empty when no classification taxonomy applies to ContentType.
	Taxonomy string `json:"taxonomy,omitempty"`
}
