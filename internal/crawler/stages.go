package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/identity"
	"github.com/BenjaminSRussell/shopscout/internal/images"
	"github.com/BenjaminSRussell/shopscout/internal/parser"
	"github.com/BenjaminSRussell/shopscout/internal/searchapi"
	"github.com/BenjaminSRussell/shopscout/internal/types"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

// cheapStage fetches the page without a browser and reads JSON-LD, meta
// tags and static title selectors
type cheapStage struct{ c *Crawler }

func (s *cheapStage) Name() string { return "cheap" }

func (s *cheapStage) Run(ctx context.Context, st *crawlState) StageResult {
	if identity.IsAlwaysCSR(st.url) {
		return skipped("page is rendered client side")
	}

	target, mobile := st.url, false
	if st.id.StoreType.IsNaver() {
		target = identity.MobileURL(st.url)
		mobile = target != st.url
	}

	opts := shttp.FetchOptions{Mobile: mobile}
	if s.c.personas != nil {
		if u, err := url.Parse(target); err == nil {
			if p, err := s.c.personas.For(u.Hostname(), mobile); err == nil {
				opts.Identity = p
			} else {
				zap.L().Debug("persona unavailable", zap.Error(err))
			}
		}
	}

	page, err := s.c.fetcher.Get(ctx, target, opts)
	if err != nil {
		return escalate(nil, "fetch: "+err.Error())
	}
	doc, err := parser.Parse(page.HTML, page.FinalURL)
	if err != nil {
		return escalate(nil, "parse: "+err.Error())
	}

	if kind, marker := validate.DetectErrorPage(visibleText(doc)); kind != validate.PageOK {
		st.notePage(kind, marker)
		return escalate(errorPagePartial(), fmt.Sprintf("%s page: %s", kind, marker))
	}

	partial := s.extract(doc, st)
	if partial.Title == "" {
		return escalate(partial, "no valid title in static html")
	}
	return StageResult{Partial: partial, Verdict: Success, Reason: "title via " + partial.FieldSources[FieldTitle].String()}
}

// extract builds the static-HTML partial. JSON-LD fields outrank everything
// read from meta tags and title selectors.
func (s *cheapStage) extract(doc *parser.Document, st *crawlState) *types.ExtractedProduct {
	rules := s.c.cfg.TitleRules
	table := s.c.cfg.Registry.For(st.id.StoreType)

	partial := types.NewExtractedProduct("", "")
	partial.SourceConfidence = types.SourceMeta
	set := func(field string, dst *string, val string, src types.Source) {
		if *dst != "" || strings.TrimSpace(val) == "" {
			return
		}
		*dst = strings.TrimSpace(val)
		partial.FieldSources[field] = src
	}

	var photos []string
	if ld := doc.JSONLD(); ld != nil {
		if t := validate.CleanTitle(ld.Name); rules.CheckTitle(t) == validate.OK {
			set(FieldTitle, &partial.Title, t, types.SourceJSONLD)
		}
		set(FieldPrice, &partial.Price, ld.FormattedPrice(), types.SourceJSONLD)
		set(FieldBrand, &partial.Brand, ld.Brand, types.SourceJSONLD)
		set(FieldDescription, &partial.Description, ld.Description, types.SourceJSONLD)
		photos = append(photos, ld.Images...)
	}

	meta := doc.MetaResult()
	if meta != nil {
		if t := validate.CleanTitle(meta.Title); rules.CheckTitle(t) == validate.OK {
			set(FieldTitle, &partial.Title, t, types.SourceMeta)
		}
		set(FieldPrice, &partial.Price, meta.Price, types.SourceMeta)
		set(FieldDescription, &partial.Description, meta.Description, types.SourceMeta)
		set(FieldMallName, &partial.MallName, meta.SiteName, types.SourceMeta)
	}

	if partial.Title == "" {
		if t, via := parser.FirstValidTitle(doc, parser.TitleStrategies(table), rules); t != "" {
			set(FieldTitle, &partial.Title, t, types.SourceMeta)
			zap.L().Debug("static title strategy matched", zap.String("strategy", via))
		}
	}
	set(FieldPrice, &partial.Price, doc.Price(table), types.SourceMeta)
	set(FieldSpec, &partial.Spec, doc.Spec(table), types.SourceMeta)

	filter := images.NewFilter(s.c.cfg.Thresholds, st.id.StoreType.IsNaver())
	photos = append(photos, filter.Clean(doc.ImageCandidates(table, s.c.cfg.Thresholds), 0)...)
	if meta != nil {
		photos = append(photos, meta.Images...)
	}
	for _, src := range photos {
		if src != "" && !images.IsBlocked(src) {
			partial.Images = append(partial.Images, images.HighRes(src))
		}
	}
	partial.Images = images.Dedup(partial.Images)
	return partial
}

func visibleText(doc *parser.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return body.Text()
}

// browserStage renders the page in the stealth browser
type browserStage struct{ c *Crawler }

func (s *browserStage) Name() string { return "browser" }

func (s *browserStage) Run(ctx context.Context, st *crawlState) StageResult {
	if s.c.browser == nil {
		return skipped("browser disabled")
	}

	snap, err := s.c.browser.Render(ctx, st.url, st.id)
	if err != nil {
		return escalate(nil, "render: "+err.Error())
	}
	if snap.IsErrorPage() {
		st.notePage(snap.Page, snap.PageMarker)
		return escalate(errorPagePartial(), fmt.Sprintf("%s page after %d loads: %s", snap.Page, snap.Loads, snap.PageMarker))
	}

	partial := types.NewExtractedProduct("", "")
	partial.SourceConfidence = types.SourceStealthDOM
	partial.Title = snap.Title
	partial.Price = snap.Price
	partial.Spec = snap.Spec
	partial.Reviews = append(partial.Reviews, snap.Reviews...)
	partial.Images = append(partial.Images, snap.Images...)
	partial.ReviewImages = append(partial.ReviewImages, snap.ReviewImages...)

	hasTitle := snap.Title != "" || st.product.HasTitle()
	have := len(images.Dedup(append(append([]string(nil), st.product.Images...), snap.Images...)))
	floor := s.c.cfg.Thresholds.ImageFloor(st.id.StoreType)

	switch {
	case !hasTitle:
		return escalate(partial, "no valid title in rendered dom")
	case have < floor:
		return escalate(partial, fmt.Sprintf("%d images, need %d", have, floor))
	}
	return StageResult{Partial: partial, Verdict: Success, Reason: "title via " + snap.TitleVia}
}

// mobileStage asks the Smart Store mobile API for the product record
type mobileStage struct{ c *Crawler }

func (s *mobileStage) Name() string { return "mobile" }

func (s *mobileStage) Run(ctx context.Context, st *crawlState) StageResult {
	switch {
	case s.c.mobile == nil:
		return skipped("mobile api disabled")
	case st.id.ProductID == "":
		return skipped("no product id")
	case !st.id.StoreType.IsNaver():
		return skipped("not a naver store")
	}

	p := s.c.mobile.FetchByProductID(ctx, st.id.ProductID, st.id.StoreName, st.id.StoreType)
	if p == nil {
		return escalate(nil, "no product record")
	}
	p.SourceConfidence = types.SourceMobileAPI
	if !acceptTitle(p, s.c.cfg.TitleRules) {
		return escalate(p, "record name rejected")
	}
	return StageResult{Partial: p, Verdict: Success, Reason: "product record found"}
}

// searchStage falls back to the official shopping search
type searchStage struct{ c *Crawler }

func (s *searchStage) Name() string { return "search" }

func (s *searchStage) Run(ctx context.Context, st *crawlState) StageResult {
	if !st.target.Credentials.HasSearch() {
		return skipped("no search credentials")
	}
	client, err := s.c.searcher(st)
	if err != nil {
		return skipped("search client: " + err.Error())
	}
	if client.Exhausted() {
		return skipped("search quota exhausted")
	}

	query, byStore := searchQuery(st)
	if query == "" {
		return skipped("nothing to search for")
	}

	item, err := client.SearchShop(ctx, query, st.id)
	if err != nil {
		if errors.Is(err, searchapi.ErrQuotaExceeded) {
			return escalate(nil, "search quota exceeded")
		}
		return escalate(nil, "shop search: "+err.Error())
	}
	if item == nil {
		return escalate(nil, "no shop hits for "+query)
	}
	// a store-name query returns the store's catalogue; only an ID match is this product
	if byStore && !matchesProduct(item, st.id.ProductID) {
		return escalate(nil, "no shop hit matches product "+st.id.ProductID)
	}

	p := item.Product()
	if !acceptTitle(p, s.c.cfg.TitleRules) {
		return escalate(p, "shop hit title rejected")
	}
	return StageResult{Partial: p, Verdict: Success, Reason: "shop hit for " + query}
}

// searchQuery prefers the URL keyword, then a title found by an earlier
// stage, then the store name
func searchQuery(st *crawlState) (string, bool) {
	if q := strings.TrimSpace(st.id.Keyword); q != "" {
		return q, false
	}
	if st.product.HasTitle() {
		return st.product.Title, false
	}
	if st.id.StoreName != "" && st.id.ProductID != "" {
		return st.id.StoreName, true
	}
	return "", false
}

func matchesProduct(item *searchapi.Item, productID string) bool {
	return productID != "" && (item.ProductID == productID || strings.Contains(item.Link, productID))
}

// imageTopUpStage adds image-search results to a product with few photos.
// It runs after a successful pipeline and never changes the outcome.
type imageTopUpStage struct{ c *Crawler }

func (s *imageTopUpStage) Name() string { return "image_top_up" }

func (s *imageTopUpStage) Run(ctx context.Context, st *crawlState) StageResult {
	client, err := s.c.searcher(st)
	if err != nil {
		return skipped("search client: " + err.Error())
	}
	if client.Exhausted() {
		return skipped("search quota exhausted")
	}

	found, err := client.SearchImages(ctx, st.product.Title, 0)
	if err != nil {
		return escalate(nil, "image search: "+err.Error())
	}

	seen := images.NewSet()
	for _, src := range st.product.Images {
		seen.Add(src)
	}
	partial := types.NewExtractedProduct("", "")
	partial.SourceConfidence = types.SourceSearchAPI
	want := s.c.cfg.ImageTopUpBelow - len(st.product.Images)
	for _, src := range found {
		if len(partial.Images) >= want {
			break
		}
		if seen.Add(src) {
			partial.Images = append(partial.Images, src)
		}
	}
	if len(partial.Images) == 0 {
		return escalate(nil, "no new images")
	}
	return StageResult{Partial: partial, Verdict: Success, Reason: fmt.Sprintf("added %d images", len(partial.Images))}
}

// acceptTitle cleans p.Title and clears it when the rules reject it
func acceptTitle(p *types.ExtractedProduct, rules *validate.TitleRules) bool {
	t := validate.CleanTitle(p.Title)
	if rules.CheckTitle(t) != validate.OK {
		zap.L().Debug("title rejected", zap.String("title", p.Title), zap.String("source", p.SourceConfidence.String()))
		p.Title = ""
		return false
	}
	p.Title = t
	return true
}

// errorPagePartial marks the crawl as having hit a blocked or not-found page
func errorPagePartial() *types.ExtractedProduct {
	p := types.NewExtractedProduct("", "")
	p.IsErrorPage = true
	return p
}
