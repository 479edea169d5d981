package crawler

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/identity"
	"github.com/BenjaminSRussell/shopscout/internal/parser"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

var blogPostPath = regexp.MustCompile(`^/([A-Za-z0-9_-]+)/(\d+)/?$`)

// BlogPostViewURL rewrites a Naver blog post URL onto the PostView frame
// that actually holds the post. Other URLs are returned unchanged.
func BlogPostViewURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Hostname())
	if host != "blog.naver.com" && host != "m.blog.naver.com" {
		return rawURL
	}
	m := blogPostPath.FindStringSubmatch(u.Path)
	if m == nil {
		return rawURL
	}
	q := url.Values{}
	q.Set("blogId", m[1])
	q.Set("logNo", m[2])
	return "https://blog.naver.com/PostView.naver?" + q.Encode()
}

// FetchArticle fetches a blog post or news article. Shopping URLs go
// through the product pipeline and come back as an article built from the
// product's description, spec and reviews. Bodies shorter than the
// configured minimum return ContentTooShortError.
func (c *Crawler) FetchArticle(ctx context.Context, rawURL string, creds types.Credentials) (*types.Article, error) {
	rawURL = strings.TrimSpace(rawURL)
	if reason := checkURL(rawURL); reason != "" {
		return nil, &InvalidURLError{URL: rawURL, Reason: reason}
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	resolved := c.resolver.Resolve(ctx, rawURL)
	if err := ctx.Err(); err != nil {
		return nil, aborted(rawURL, "resolve", err)
	}

	var (
		article *types.Article
		err     error
	)
	if id := identity.Resolve(resolved); id.StoreType != types.StoreGeneric || identity.IsAlwaysCSR(resolved) {
		article, err = c.productArticle(ctx, resolved, creds)
	} else {
		article, err = c.staticArticle(ctx, resolved)
	}
	if err != nil {
		return nil, err
	}

	article.URL = rawURL
	article.FetchedAt = time.Now().UTC()
	if n := utf8.RuneCountInString(article.Content); n < c.cfg.MinArticleRunes {
		return nil, &ContentTooShortError{URL: rawURL, Runes: n, Min: c.cfg.MinArticleRunes}
	}
	zap.L().Info("article fetched",
		zap.String("url", rawURL),
		zap.String("title", article.Title),
		zap.Int("runes", utf8.RuneCountInString(article.Content)),
		zap.Int("images", len(article.Images)),
	)
	return article, nil
}

func (c *Crawler) staticArticle(ctx context.Context, rawURL string) (*types.Article, error) {
	target := BlogPostViewURL(rawURL)
	doc, err := c.fetchDocument(ctx, target)
	if err != nil {
		return nil, err
	}

	// desktop blog pages wrap the post in a frame
	if frame := doc.MainFrameURL(); frame != "" && frame != target {
		if inner, err := c.fetchDocument(ctx, frame); err == nil {
			doc = inner
		} else if ctx.Err() != nil {
			return nil, aborted(rawURL, "article", ctx.Err())
		} else {
			zap.L().Debug("main frame fetch failed", zap.String("frame", frame), zap.Error(err))
		}
	}

	res := doc.Article()
	return &types.Article{
		Title:       res.Title,
		Content:     res.Content,
		PublishedAt: firstNonEmpty(doc.Meta("article:published_time"), doc.Meta("og:article:published_time")),
		Images:      res.Images,
	}, nil
}

func (c *Crawler) fetchDocument(ctx context.Context, target string) (*parser.Document, error) {
	page, err := c.fetcher.Get(ctx, target, shttp.FetchOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, aborted(target, "article", ctx.Err())
		}
		return nil, eris.Wrapf(err, "article: fetch %s", target)
	}
	doc, err := parser.Parse(page.HTML, page.FinalURL)
	if err != nil {
		return nil, eris.Wrap(err, "article: parse")
	}
	return doc, nil
}

func (c *Crawler) productArticle(ctx context.Context, rawURL string, creds types.Credentials) (*types.Article, error) {
	p, err := c.CrawlProduct(ctx, types.CrawlTarget{URL: rawURL, Credentials: creds})
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, 2+len(p.Reviews))
	for _, s := range []string{p.Description, p.Spec} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, p.Reviews...)
	return &types.Article{
		Title:   p.Title,
		Content: parser.CleanText(strings.Join(parts, "\n\n")),
		Images:  p.Images,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
