// Package seeding discovers product URLs for batch crawls from a shop's
// sitemaps.
package seeding

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/identity"
)

const (
	defaultMaxSitemaps = 50
	maxSitemapBytes    = 50 << 20
)

// Discoverer walks sitemaps and sitemap indexes
type Discoverer struct {
	client      *http.Client
	maxSitemaps int
}

// NewDiscoverer returns a Discoverer using client, or http.DefaultClient
func NewDiscoverer(client *http.Client) *Discoverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Discoverer{client: client, maxSitemaps: defaultMaxSitemaps}
}

// Discover collects page URLs from the sitemaps announced in robots.txt and
// the conventional sitemap locations of siteURL's host. Nested indexes are
// followed. limit <= 0 means no limit. Discover only fails when no sitemap
// could be read at all.
func (d *Discoverer) Discover(ctx context.Context, siteURL string, limit int) ([]string, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, eris.Errorf("seeding: invalid site URL %q", siteURL)
	}
	origin := u.Scheme + "://" + u.Host

	queue := d.announced(ctx, origin)
	queue = append(queue, origin+"/sitemap.xml", origin+"/sitemap_index.xml")

	var (
		pages   []string
		seen    = make(map[string]bool)
		visited = make(map[string]bool)
		read    int
	)
	for len(queue) > 0 && len(visited) < d.maxSitemaps {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		next := queue[0]
		queue = queue[1:]
		if visited[next] {
			continue
		}
		visited[next] = true

		nested, locs, err := d.fetch(ctx, next)
		if err != nil {
			zap.L().Debug("sitemap skipped", zap.String("sitemap", next), zap.Error(err))
			continue
		}
		read++
		queue = append(queue, nested...)
		for _, loc := range locs {
			if seen[loc] {
				continue
			}
			seen[loc] = true
			pages = append(pages, loc)
			if limit > 0 && len(pages) >= limit {
				return pages, nil
			}
		}
	}

	if read == 0 {
		return nil, eris.Errorf("seeding: no sitemap found for %s", origin)
	}
	return pages, nil
}

// announced returns the Sitemap directives of the origin's robots.txt
func (d *Discoverer) announced(ctx context.Context, origin string) []string {
	resp, err := d.get(ctx, origin+"/robots.txt")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return robots.Sitemaps
}

// fetch reads one sitemap document and splits its <loc> entries into nested
// sitemaps and pages
func (d *Discoverer) fetch(ctx context.Context, sitemapURL string) (nested, pages []string, err error) {
	resp, err := d.get(ctx, sitemapURL)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("sitemap returned status %d", resp.StatusCode)
	}

	var body io.Reader = io.LimitReader(resp.Body, maxSitemapBytes)
	if strings.HasSuffix(strings.ToLower(sitemapURL), ".gz") {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, nil, eris.Wrap(err, "seeding: gunzip sitemap")
		}
		defer zr.Close()
		body = zr
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, nil, eris.Wrap(err, "seeding: parse sitemap")
	}
	doc.Find("sitemap > loc").Each(func(_ int, s *goquery.Selection) {
		if loc := strings.TrimSpace(s.Text()); loc != "" {
			nested = append(nested, loc)
		}
	})
	doc.Find("url > loc").Each(func(_ int, s *goquery.Selection) {
		if loc := strings.TrimSpace(s.Text()); loc != "" {
			pages = append(pages, loc)
		}
	})
	return nested, pages, nil
}

func (d *Discoverer) get(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	return d.client.Do(req)
}

// ProductURLs keeps the URLs that carry a product id
func ProductURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if identity.Resolve(u).ProductID != "" {
			out = append(out, u)
		}
	}
	return out
}
