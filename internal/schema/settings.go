package schema

// CategoryMapping assigns CategoryID to entries whose title or body contains Keyword.
type CategoryMapping struct {
	Keyword    string `json:"keyword" yaml:"keyword" toml:"keyword" mapstructure:"keyword"`
	CategoryID int64  `json:"category" yaml:"category" toml:"category" mapstructure:"category"`
}

// Settings is the read-only configuration the sync core consumes.
type Settings struct {
	FeedURL            string            `json:"feed_url"`
	DefaultAuthor      int64             `json:"default_author"`
	DefaultStatus      string            `json:"default_status"`
	DefaultContentType string            `json:"default_content_type"`
	CategoryMappings   []CategoryMapping `json:"category_mapping"`
}
