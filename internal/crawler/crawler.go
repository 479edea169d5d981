// Package crawler runs the product crawl pipeline: a cheap static fetch,
// the stealth browser, the mobile product API and the official search API,
// merging partial results by source confidence.
package crawler

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/cache"
	"github.com/BenjaminSRussell/shopscout/internal/config"
	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/identity"
	"github.com/BenjaminSRussell/shopscout/internal/metrics"
	"github.com/BenjaminSRussell/shopscout/internal/mobileapi"
	"github.com/BenjaminSRussell/shopscout/internal/parser"
	"github.com/BenjaminSRussell/shopscout/internal/persona"
	"github.com/BenjaminSRussell/shopscout/internal/renderer"
	"github.com/BenjaminSRussell/shopscout/internal/searchapi"
	"github.com/BenjaminSRussell/shopscout/internal/selectors"
	"github.com/BenjaminSRussell/shopscout/internal/storage"
	"github.com/BenjaminSRussell/shopscout/internal/types"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

// PageFetcher performs plain HTTP GETs
type PageFetcher interface {
	Get(ctx context.Context, rawURL string, opts shttp.FetchOptions) (*shttp.Page, error)
}

// URLResolver expands short and affiliate links
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) string
}

// ProductLookup fetches a product record by ID. It returns nil on failure.
type ProductLookup interface {
	FetchByProductID(ctx context.Context, id, storeName string, st types.StoreType) *types.ExtractedProduct
}

// ProductSearcher is the part of the search API the pipeline uses
type ProductSearcher interface {
	SearchShop(ctx context.Context, query string, id types.ResolvedIdentity) (*searchapi.Item, error)
	SearchImages(ctx context.Context, query string, display int) ([]string, error)
	Exhausted() bool
}

// SearchFactory creates a search client for one crawl's credentials
type SearchFactory func(creds types.Credentials) (ProductSearcher, error)

// Config holds orchestrator settings
type Config struct {
	// Timeout bounds a whole crawl; zero means only the caller's context
	Timeout         time.Duration
	ImageTopUpBelow int
	MinArticleRunes int
	Thresholds      selectors.Thresholds
	Registry        *selectors.Registry
	TitleRules      *validate.TitleRules
}

// Option customises a Crawler
type Option func(*Crawler)

// WithFetcher replaces the static page fetcher
func WithFetcher(f PageFetcher) Option {
	return func(c *Crawler) { c.fetcher = f }
}

// WithResolver replaces the short URL resolver
func WithResolver(r URLResolver) Option {
	return func(c *Crawler) { c.resolver = r }
}

// WithPersonas sets the persona pool used for static fetches
func WithPersonas(p *persona.Pool) Option {
	return func(c *Crawler) { c.personas = p }
}

// WithBrowser enables the browser stage. Without it the stage is skipped.
func WithBrowser(b renderer.Browser) Option {
	return func(c *Crawler) { c.browser = b }
}

// WithMobile replaces the mobile product API client
func WithMobile(m ProductLookup) Option {
	return func(c *Crawler) { c.mobile = m }
}

// WithSearchFactory replaces how search clients are created
func WithSearchFactory(f SearchFactory) Option {
	return func(c *Crawler) { c.newSearch = f }
}

// WithCache injects the result cache
func WithCache(rc cache.Cache) Option {
	return func(c *Crawler) { c.cache = rc }
}

// WithRecorder persists every crawl outcome
func WithRecorder(r storage.Recorder) Option {
	return func(c *Crawler) { c.recorder = r }
}

// Crawler orchestrates product and article crawls. It is safe for
// concurrent use.
type Crawler struct {
	cfg Config

	fetcher   PageFetcher
	resolver  URLResolver
	personas  *persona.Pool
	browser   renderer.Browser
	mobile    ProductLookup
	newSearch SearchFactory
	cache     cache.Cache
	recorder  storage.Recorder

	stages []Stage
	topUp  Stage
	newID  func() string
}

// New creates a crawler. Unset collaborators get production defaults,
// except the browser, which must be given explicitly.
func New(cfg Config, opts ...Option) *Crawler {
	if cfg.ImageTopUpBelow <= 0 {
		cfg.ImageTopUpBelow = 10
	}
	if cfg.MinArticleRunes <= 0 {
		cfg.MinArticleRunes = 200
	}
	if cfg.Thresholds == (selectors.Thresholds{}) {
		cfg.Thresholds = selectors.DefaultThresholds()
	}
	if cfg.Registry == nil {
		cfg.Registry = selectors.Default()
	}
	if cfg.TitleRules == nil {
		cfg.TitleRules = validate.DefaultTitleRules()
	}

	c := &Crawler{
		cfg:      cfg,
		fetcher:  shttp.NewFetcher(shttp.FetcherConfig{Retry: shttp.DefaultRetryConfig()}, nil),
		resolver: shttp.NewShortURLResolver(&http.Client{Timeout: 10 * time.Second}, 10),
		personas: persona.NewPool(0, 0),
		mobile:   mobileapi.New(config.MobileConfig{}),
		newSearch: func(creds types.Credentials) (ProductSearcher, error) {
			return searchapi.New(config.SearchConfig{}, creds)
		},
		cache: cache.Noop{},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.stages = []Stage{
		&cheapStage{c: c},
		&browserStage{c: c},
		&mobileStage{c: c},
		&searchStage{c: c},
	}
	c.topUp = &imageTopUpStage{c: c}
	return c
}

// Stages returns the pipeline stage names in order
func (c *Crawler) Stages() []string {
	names := make([]string, 0, len(c.stages)+1)
	for _, s := range c.stages {
		names = append(names, s.Name())
	}
	return append(names, c.topUp.Name())
}

// CrawlProduct crawls one product URL. It returns ProductNotFoundError when
// no stage found a valid title, CrawlAbortedError when ctx ends first and
// InvalidURLError for unusable input.
func (c *Crawler) CrawlProduct(ctx context.Context, target types.CrawlTarget) (*types.ExtractedProduct, error) {
	p, _, err := c.crawl(ctx, target)
	return p, err
}

// crawl is CrawlProduct that also reports a cache hit
func (c *Crawler) crawl(ctx context.Context, target types.CrawlTarget) (*types.ExtractedProduct, bool, error) {
	start := time.Now()
	crawlID := c.newID()
	rawURL := strings.TrimSpace(target.URL)
	log := zap.L().With(zap.String("crawl_id", crawlID), zap.String("url", rawURL))

	if reason := checkURL(rawURL); reason != "" {
		err := &InvalidURLError{URL: target.URL, Reason: reason}
		c.finish(crawlID, rawURL, types.StoreGeneric, nil, err, start)
		return nil, false, err
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resolved := c.resolver.Resolve(ctx, rawURL)
	if err := ctx.Err(); err != nil {
		err := aborted(rawURL, "resolve", err)
		c.finish(crawlID, rawURL, types.StoreGeneric, nil, err, start)
		return nil, false, err
	}
	id := identity.Resolve(resolved)
	log = log.With(zap.String("store_type", string(id.StoreType)))
	if resolved != rawURL {
		log.Debug("short url expanded", zap.String("resolved", resolved))
	}

	key := cache.Key(parser.CanonicalURL(resolved))
	if cached, ok := c.lookup(ctx, key); ok {
		log.Info("cache hit", zap.String("title", cached.Title))
		c.finish(crawlID, rawURL, id.StoreType, cached, nil, start)
		return cached, true, nil
	}

	p := types.NewExtractedProduct(crawlID, rawURL)
	p.ResolvedURL = resolved
	p.Identity = id
	st := &crawlState{target: target, url: resolved, id: id, product: p}

	succeeded := false
	for _, stage := range c.stages {
		if err := ctx.Err(); err != nil {
			err := aborted(rawURL, stage.Name(), err)
			c.finish(crawlID, rawURL, id.StoreType, nil, err, start)
			return nil, false, err
		}
		res := c.runStage(ctx, stage, st, log)
		if res.Verdict == Abort {
			err := aborted(rawURL, stage.Name(), ctx.Err())
			c.finish(crawlID, rawURL, id.StoreType, nil, err, start)
			return nil, false, err
		}
		if res.Verdict == Success {
			succeeded = true
			break
		}
	}

	if !p.HasTitle() || p.IsErrorPage {
		err := &ProductNotFoundError{
			URL:        rawURL,
			Identity:   id,
			Attempts:   st.attempts,
			Page:       st.page,
			PageMarker: st.pageMarker,
		}
		log.Warn("product not found",
			zap.String("page", st.page.String()),
			zap.String("page_marker", st.pageMarker),
			zap.Int("attempts", len(st.attempts)),
		)
		c.finish(crawlID, rawURL, id.StoreType, nil, err, start)
		return nil, false, err
	}

	if !succeeded {
		// an escalating stage left a valid title behind
		log.Info("keeping partial product",
			zap.String("source", p.SourceConfidence.String()),
			zap.Int("images", len(p.Images)),
		)
	}

	if len(p.Images) < c.cfg.ImageTopUpBelow && target.Credentials.HasSearch() {
		if res := c.runStage(ctx, c.topUp, st, log); res.Verdict == Abort {
			err := aborted(rawURL, c.topUp.Name(), ctx.Err())
			c.finish(crawlID, rawURL, id.StoreType, nil, err, start)
			return nil, false, err
		}
	}

	p.CrawledAt = time.Now().UTC()
	metrics.TitleSource.WithLabelValues(p.SourceConfidence.String()).Inc()
	if err := c.cache.Set(ctx, key, p); err != nil {
		log.Warn("cache store failed", zap.Error(err))
	}

	log.Info("product crawled",
		zap.String("title", p.Title),
		zap.String("source", p.SourceConfidence.String()),
		zap.Int("images", len(p.Images)),
		zap.Duration("elapsed", time.Since(start)),
	)
	c.finish(crawlID, rawURL, id.StoreType, p, nil, start)
	return p, false, nil
}

func (c *Crawler) lookup(ctx context.Context, key string) (*types.ExtractedProduct, bool) {
	p, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		zap.L().Warn("cache lookup failed", zap.Error(err))
		metrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	case !ok || !p.HasTitle():
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return p, true
}

// finish records the outcome in metrics and the recorder
func (c *Crawler) finish(crawlID, rawURL string, st types.StoreType, p *types.ExtractedProduct, err error, start time.Time) {
	elapsed := time.Since(start)
	outcome := "success"
	if err != nil {
		outcome = ErrorKind(err)
	}
	metrics.ObserveCrawl(string(st), outcome, elapsed)

	if c.recorder == nil {
		return
	}
	rec := types.CrawlRecord{
		CrawlID:   crawlID,
		URL:       rawURL,
		StoreType: st,
		Elapsed:   elapsed,
		CrawledAt: time.Now().UTC(),
		Product:   p,
	}
	if p != nil {
		rec.Title = p.Title
		rec.Price = p.Price
		rec.Source = p.SourceConfidence
		rec.ImageCount = len(p.Images)
	}
	if err != nil {
		rec.Error = err.Error()
		rec.ErrorKind = ErrorKind(err)
	}
	if err := c.recorder.SaveRecord(rec); err != nil {
		zap.L().Warn("failed to record crawl", zap.String("crawl_id", crawlID), zap.Error(err))
	}
}

// searcher returns the crawl's search client, creating it on first use
func (c *Crawler) searcher(st *crawlState) (ProductSearcher, error) {
	if st.search == nil && st.searchErr == nil {
		if c.newSearch == nil {
			st.searchErr = searchapi.ErrNoCredentials
		} else {
			st.search, st.searchErr = c.newSearch(st.target.Credentials)
		}
	}
	return st.search, st.searchErr
}

func checkURL(rawURL string) string {
	if rawURL == "" {
		return "empty"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unparseable"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "scheme must be http or https"
	}
	if u.Hostname() == "" {
		return "missing host"
	}
	return ""
}
