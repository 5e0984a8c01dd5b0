package mapper

// Well-known content types and taxonomies.
const (
	ContentTypeReports = "reports"
	ContentTypePost    = "post"

	TaxonomyReports  = "reports-category"
	TaxonomyCategory = "category"
)

// Catalog describes the content types and taxonomies the destination knows about.
type Catalog interface {
	HasContentType(name string) bool
	HasTaxonomy(name string) bool
	// TaxonomyAttached reports whether taxonomy applies to records of contentType.
	TaxonomyAttached(taxonomy, contentType string) bool
}

// StaticCatalog is a Catalog built from configuration.
type StaticCatalog struct {
	ContentTypes []string `mapstructure:"content_types" yaml:"content_types"`

	// Taxonomies maps a taxonomy name to the content types it is attached to.
	Taxonomies map[string][]string `mapstructure:"taxonomies" yaml:"taxonomies"`
}

// DefaultCatalog returns the stock catalog: posts with categories and reports
// with their own reports-category taxonomy.
func DefaultCatalog() *StaticCatalog {
	return &StaticCatalog{
		ContentTypes: []string{ContentTypePost, "page", ContentTypeReports},
		Taxonomies: map[string][]string{
			TaxonomyCategory: {ContentTypePost},
			TaxonomyReports:  {ContentTypeReports},
		},
	}
}

func (c *StaticCatalog) HasContentType(name string) bool {
	for _, t := range c.ContentTypes {
		if t == name {
			return true
		}
	}
	return false
}

func (c *StaticCatalog) HasTaxonomy(name string) bool {
	_, ok := c.Taxonomies[name]
	return ok
}

func (c *StaticCatalog) TaxonomyAttached(taxonomy, contentType string) bool {
	for _, t := range c.Taxonomies[taxonomy] {
		if t == contentType {
			return true
		}
	}
	return false
}
