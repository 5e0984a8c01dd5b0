// Package mapper turns feed entries into destination payloads.
//
// Mapping covers body sanitizing, content type and taxonomy resolution, and
// keyword-based category classification.
package mapper

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/steveyegge/feedsync/internal/schema"
)

const (
	subscriptionSelector = `div[class*="subscription"]`
	likeButtonSelector   = `div[class*="like-button"]`
)

// Mapper builds payloads against a catalog of content types and taxonomies.
type Mapper struct {
	catalog Catalog
}

// New creates a Mapper. A nil catalog means DefaultCatalog.
func New(catalog Catalog) *Mapper {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Mapper{catalog: catalog}
}

// BuildPayload maps entry to a destination payload using settings.
func (m *Mapper) BuildPayload(entry *schema.FeedEntry, settings schema.Settings) *schema.Payload {
	body := Sanitize(entry.RawContent, settings.FeedURL)
	contentType := m.ResolveContentType(settings.DefaultContentType)
	taxonomy := m.ResolveTaxonomy(contentType)

	var categories []int64
	if taxonomy != "" {
		categories = Classify(entry.Title+" "+body, settings.CategoryMappings)
	}

	status := settings.DefaultStatus
	if status == "" {
		status = schema.PostStatusDraft
	}
	author := settings.DefaultAuthor
	if author <= 0 {
		author = schema.DefaultAuthorID
	}

	return &schema.Payload{
		Title:       entry.Title,
		Body:        body,
		Status:      status,
		Author:      author,
		PublishDate: entry.PublishedAt,
		ContentType: contentType,
		CategoryIDs: categories,
		Taxonomy:    taxonomy,
	}
}

// ResolveContentType returns configured if the catalog knows it, otherwise
// reports when available, otherwise post.
func (m *Mapper) ResolveContentType(configured string) string {
	if configured != "" && m.catalog.HasContentType(configured) {
		return configured
	}
	if m.catalog.HasContentType(ContentTypeReports) {
		return ContentTypeReports
	}
	return ContentTypePost
}

// ResolveTaxonomy returns the classification taxonomy for contentType, or ""
// when none applies.
func (m *Mapper) ResolveTaxonomy(contentType string) string {
	if contentType == ContentTypeReports && m.catalog.HasTaxonomy(TaxonomyReports) {
		return TaxonomyReports
	}
	if m.catalog.HasTaxonomy(TaxonomyCategory) && m.catalog.TaxonomyAttached(TaxonomyCategory, contentType) {
		return TaxonomyCategory
	}
	return ""
}

// Classify returns the category ids whose keyword occurs in text, in mapping
// order without duplicates. Matching is case-insensitive substring containment.
func Classify(text string, mappings []schema.CategoryMapping) []int64 {
	haystack := strings.ToLower(text)
	seen := make(map[int64]bool)
	ids := []int64{}

	for _, mapping := range mappings {
		keyword := strings.ToLower(strings.TrimSpace(mapping.Keyword))
		if keyword == "" || mapping.CategoryID <= 0 {
			continue
		}
		if seen[mapping.CategoryID] || !strings.Contains(haystack, keyword) {
			continue
		}
		seen[mapping.CategoryID] = true
		ids = append(ids, mapping.CategoryID)
	}

	return ids
}

// SubscribeBlock returns the markup that replaces subscription prompts.
func SubscribeBlock(feedURL string) string {
	return fmt.Sprintf(`<div class="substack-subscribe-block"><a href="%s" target="_blank">Subscribe to our newsletter</a></div>`,
		html.EscapeString(feedURL))
}

// Sanitize replaces subscription prompt blocks with a subscribe link to
// feedURL and strips like-button blocks. Bodies without either are returned
// unchanged.
func Sanitize(body, feedURL string) string {
	if !strings.Contains(body, "subscription") && !strings.Contains(body, "like-button") {
		return body
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}

	subs := outermost(doc, subscriptionSelector)
	likes := outermost(doc, likeButtonSelector)
	if subs.Length() == 0 && likes.Length() == 0 {
		return body
	}

	likes.Remove()
	subs.ReplaceWithHtml(SubscribeBlock(feedURL))

	out, err := doc.Find("body").Html()
	if err != nil {
		return body
	}
	return out
}

// outermost selects matches of sel that are not nested inside another match.
func outermost(doc *goquery.Document, sel string) *goquery.Selection {
	return doc.Find(sel).Not(sel + " " + sel)
}
