package types

import (
	"strings"
	"time"
)

const (
	// MaxDescriptionRunes bounds ExtractedProduct.Description
	MaxDescriptionRunes = 3000
	// MaxReviews bounds ExtractedProduct.Reviews
	MaxReviews = 5
)

// StoreType classifies which marketplace URL shape a product URL belongs to
type StoreType string

const (
	StoreSmartStore StoreType = "smartstore"
	StoreBrandStore StoreType = "brandstore"
	StoreCoupang    StoreType = "coupang"
	StoreGmarket    StoreType = "gmarket"
	StoreAuction    StoreType = "auction"
	StoreEleven     StoreType = "11st"
	StoreGeneric    StoreType = "generic"
)

// IsNaver reports whether the store is hosted by Naver commerce
func (s StoreType) IsNaver() bool {
	return s == StoreSmartStore || s == StoreBrandStore
}

// Credentials carries optional API keys. Missing keys disable the stages
// that need them.
type Credentials struct {
	SearchClientID     string `json:"-" mapstructure:"search_client_id"`
	SearchClientSecret string `json:"-" mapstructure:"search_client_secret"`
	AdAPIKey           string `json:"-" mapstructure:"ad_api_key"`
	AdAPISecret        string `json:"-" mapstructure:"ad_api_secret"`
	AdCustomerID       string `json:"-" mapstructure:"ad_customer_id"`
}

// HasSearch reports whether the official search API can be called
func (c Credentials) HasSearch() bool {
	return strings.TrimSpace(c.SearchClientID) != "" && strings.TrimSpace(c.SearchClientSecret) != ""
}

// CrawlTarget is the input of a single crawl request
type CrawlTarget struct {
	URL         string
	Credentials Credentials
}

// ResolvedIdentity is the result of URL classification
type ResolvedIdentity struct {
	StoreType StoreType `json:"store_type"`
	StoreName string    `json:"store_name,omitempty"`
	ProductID string    `json:"product_id,omitempty"`
	Keyword   string    `json:"keyword,omitempty"`
}

// Source identifies the stage that produced a value. Higher values carry
// more confidence.
type Source int

const (
	SourceNone Source = iota
	SourceMeta
	SourceSearchAPI
	SourceMobileAPI
	SourceStealthDOM
	SourceJSONLD
)

var sourceNames = map[Source]string{
	SourceNone:       "none",
	SourceMeta:       "meta",
	SourceSearchAPI:  "search_api",
	SourceMobileAPI:  "mobile_api",
	SourceStealthDOM: "stealth_dom",
	SourceJSONLD:     "jsonld",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the source by name
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a source name; unknown names map to SourceNone
func (s *Source) UnmarshalText(b []byte) error {
	*s = ParseSource(string(b))
	return nil
}

// ParseSource converts a source name back into a Source
func ParseSource(name string) Source {
	for src, n := range sourceNames {
		if n == name {
			return src
		}
	}
	return SourceNone
}

// ExtractedProduct is the unified result accreted across crawl stages
type ExtractedProduct struct {
	CrawlID          string           `json:"crawl_id"`
	SourceURL        string           `json:"source_url"`
	ResolvedURL      string           `json:"resolved_url,omitempty"`
	Identity         ResolvedIdentity `json:"identity"`
	Title            string           `json:"title,omitempty"`
	Price            string           `json:"price,omitempty"`
	Brand            string           `json:"brand,omitempty"`
	MallName         string           `json:"mall_name,omitempty"`
	Description      string           `json:"description,omitempty"`
	Spec             string           `json:"spec,omitempty"`
	Images           []string         `json:"images"`
	Reviews          []string         `json:"reviews"`
	ReviewImages     []string         `json:"review_images"`
	SourceConfidence Source           `json:"source_confidence"`
	IsErrorPage      bool             `json:"is_error_page"`
	CrawledAt        time.Time        `json:"crawled_at"`

	// FieldSources records which source set each scalar field
	FieldSources map[string]Source `json:"field_sources,omitempty"`
}

// NewExtractedProduct creates an empty product for a crawl
func NewExtractedProduct(crawlID, sourceURL string) *ExtractedProduct {
	return &ExtractedProduct{
		CrawlID:      crawlID,
		SourceURL:    sourceURL,
		Images:       make([]string, 0),
		Reviews:      make([]string, 0),
		ReviewImages: make([]string, 0),
		FieldSources: make(map[string]Source),
	}
}

// HasTitle reports whether a title has been accepted
func (p *ExtractedProduct) HasTitle() bool {
	return p != nil && strings.TrimSpace(p.Title) != ""
}

// Article is the result of an article (blog/news) fetch
type Article struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	PublishedAt string    `json:"published_at,omitempty"`
	Images      []string  `json:"images"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// CrawlRecord is one persisted crawl outcome
type CrawlRecord struct {
	CrawlID    string            `json:"crawl_id"`
	URL        string            `json:"url"`
	StoreType  StoreType         `json:"store_type"`
	Title      string            `json:"title,omitempty"`
	Price      string            `json:"price,omitempty"`
	Source     Source            `json:"source"`
	ImageCount int               `json:"image_count"`
	Error      string            `json:"error,omitempty"`
	ErrorKind  string            `json:"error_kind,omitempty"`
	Elapsed    time.Duration     `json:"elapsed"`
	CrawledAt  time.Time         `json:"crawled_at"`
	Product    *ExtractedProduct `json:"product,omitempty"`
}

// BatchResults contains batch crawl statistics
type BatchResults struct {
	Total     int
	Succeeded int
	Failed    int
	Cached    int
}
