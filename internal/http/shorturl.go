package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var shortenerHosts = map[string]bool{
	"naver.me":         true,
	"me2.do":           true,
	"coupa.ng":         true,
	"link.coupang.com": true,
	"bit.ly":           true,
	"goo.gl":           true,
	"tinyurl.com":      true,
	"t.co":             true,
	"han.gl":           true,
	"vo.la":            true,
	"url.kr":           true,
	"buly.kr":          true,
	"zrr.kr":           true,
	"abit.ly":          true,
}

// IsShortURL reports whether rawURL points at a known shortener or redirect host
func IsShortURL(rawURL string) bool {
	return isShortURL(rawURL, shortenerHosts)
}

func isShortURL(rawURL string, hosts map[string]bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if hosts[host] {
		return true
	}
	return host == "brandconnect.naver.com" && strings.HasPrefix(u.Path, "/r/")
}

// marketplace hosts end a redirect walk early; their pages are fetched later anyway
var marketplaceDomains = []string{
	"smartstore.naver.com",
	"brand.naver.com",
	"shopping.naver.com",
	"coupang.com",
	"gmarket.co.kr",
	"auction.co.kr",
	"11st.co.kr",
}

func isMarketplaceURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range marketplaceDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// ShortURLResolver follows redirect chains of shortened/affiliate links
type ShortURLResolver struct {
	client  *http.Client
	maxHops int
	rotator *HeaderRotator
	hosts   map[string]bool
}

// NewShortURLResolver creates a resolver. A nil client gets a 10s default.
func NewShortURLResolver(client *http.Client, maxHops int) *ShortURLResolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	// Redirects are walked by hand so every hop is visible
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if maxHops <= 0 {
		maxHops = 10
	}
	hosts := make(map[string]bool, len(shortenerHosts))
	for h := range shortenerHosts {
		hosts[h] = true
	}
	return &ShortURLResolver{client: &c, maxHops: maxHops, rotator: NewHeaderRotator(), hosts: hosts}
}

// AddHost registers an additional shortener host
func (r *ShortURLResolver) AddHost(host string) {
	r.hosts[strings.ToLower(host)] = true
}

// Resolve returns the final URL of a short link. Unknown hosts are returned
// unchanged without network access; network failures return the input.
func (r *ShortURLResolver) Resolve(ctx context.Context, rawURL string) string {
	if !isShortURL(rawURL, r.hosts) {
		return rawURL
	}

	current := rawURL
	for hop := 0; hop < r.maxHops; hop++ {
		next, ok := r.step(ctx, current)
		if !ok {
			break
		}
		if next == "" {
			zap.L().Debug("short url resolved", zap.String("url", rawURL), zap.String("final", current), zap.Int("hops", hop))
			return current
		}
		current = next
		if isMarketplaceURL(current) && !isShortURL(current, r.hosts) {
			zap.L().Debug("short url resolved", zap.String("url", rawURL), zap.String("final", current), zap.Int("hops", hop+1))
			return current
		}
	}

	if current != rawURL {
		return current
	}
	zap.L().Debug("short url unresolved, keeping original", zap.String("url", rawURL))
	return rawURL
}

// step performs one request. It returns the redirect target, "" when the
// response is final, or ok=false on failure.
func (r *ShortURLResolver) step(ctx context.Context, current string) (string, bool) {
	resp, err := r.do(ctx, http.MethodHead, current)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp.Body.Close()
		resp, err = r.do(ctx, http.MethodGet, current)
	}
	if err != nil {
		zap.L().Debug("short url hop failed", zap.String("url", current), zap.Error(err))
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return "", true
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", true
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

func (r *ShortURLResolver) do(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	ApplyHeaders(req, r.rotator.GetRandomProfile(false))
	return r.client.Do(req)
}
