package searchapi

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/BenjaminSRussell/shopscout/internal/parser"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// SearchShop runs a shopping search and returns the hit that best matches
// the identity, or nil when there are no hits
func (c *Client) SearchShop(ctx context.Context, query string, id types.ResolvedIdentity) (*Item, error) {
	items, err := c.Search(ctx, query, KindShop, 0)
	if err != nil {
		return nil, err
	}
	return PickShopMatch(items, id), nil
}

// PickShopMatch prefers a hit whose link carries the product ID, then one
// whose mall or brand equals the store name, then the top hit
func PickShopMatch(items []Item, id types.ResolvedIdentity) *Item {
	if len(items) == 0 {
		return nil
	}
	if id.ProductID != "" {
		for i := range items {
			if strings.Contains(items[i].Link, id.ProductID) || items[i].ProductID == id.ProductID {
				return &items[i]
			}
		}
	}
	if store := strings.ToLower(strings.TrimSpace(id.StoreName)); store != "" {
		for i := range items {
			if strings.ToLower(items[i].MallName) == store || strings.ToLower(items[i].Brand) == store {
				return &items[i]
			}
		}
	}
	return &items[0]
}

// Product converts a shopping hit into a partial product
func (it *Item) Product() *types.ExtractedProduct {
	p := types.NewExtractedProduct("", "")
	p.Title = it.Title
	p.Price = parser.FormatPrice(it.LowPrice, "KRW")
	p.Brand = it.Brand
	if p.Brand == "" {
		p.Brand = it.Maker
	}
	p.MallName = it.MallName
	if it.Category != "" {
		p.Spec = "카테고리: " + it.Category
	}
	if it.Image != "" {
		p.Images = append(p.Images, it.Image)
	}
	p.SourceConfidence = types.SourceSearchAPI
	return p
}

const (
	minImageWidth  = 300
	minImageHeight = 200
)

var brokenImagePatterns = []string{
	"noimage", "no_image", "placeholder", "default", "blank", "error",
	"missing", "notfound", "404", "broken", "empty", "dummy",
	"spacer.gif", "1x1.png", "pixel.gif",
}

// SearchImages runs a large-image search and returns the URLs that pass the
// size and placeholder filters
func (c *Client) SearchImages(ctx context.Context, query string, display int) ([]string, error) {
	items, err := c.search(ctx, query, KindImage, display, url.Values{"filter": {"large"}})
	if err != nil {
		return nil, err
	}
	return FilterImages(items), nil
}

// FilterImages drops hits that are too small or look like placeholders
func FilterImages(items []Item) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Link == "" || seen[it.Link] {
			continue
		}
		if it.Width > 0 && it.Width < minImageWidth {
			continue
		}
		if it.Height > 0 && it.Height < minImageHeight {
			continue
		}
		if isBrokenImage(it.Link) {
			continue
		}
		seen[it.Link] = true
		out = append(out, it.Link)
	}
	return out
}

func isBrokenImage(src string) bool {
	lower := strings.ToLower(src)
	if u, err := url.Parse(lower); err == nil {
		lower = u.Path
	}
	for _, p := range brokenImagePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Content is the merged result of a blog, news and web search
type Content struct {
	Blogs    []Item
	News     []Item
	Web      []Item
	Snippets []string
}

// Total returns the number of hits across verticals
func (c *Content) Total() int {
	return len(c.Blogs) + len(c.News) + len(c.Web)
}

const (
	contentDisplay  = 5
	minSnippetRunes = 30
)

// SearchContent queries blog, news and web concurrently and waits for all
// three. A failing vertical contributes nothing; the call only fails when
// every vertical failed.
func (c *Client) SearchContent(ctx context.Context, query string) (*Content, error) {
	kinds := []Kind{KindBlog, KindNews, KindWeb}
	results := make([][]Item, len(kinds))
	errs := make([]error, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			results[i], errs[i] = c.Search(gctx, query, kind, contentDisplay)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(kinds) {
		return nil, errs[0]
	}

	out := &Content{Blogs: results[0], News: results[1], Web: results[2]}
	for _, group := range results {
		for _, it := range group {
			if len([]rune(it.Description)) > minSnippetRunes {
				out.Snippets = append(out.Snippets, it.Description)
			}
		}
	}
	return out, nil
}
