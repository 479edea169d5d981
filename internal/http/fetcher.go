package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 10 << 20

// Identity is a consistent browsing identity used for a run of requests
type Identity interface {
	Header() BrowserProfile
	TLS() TLSProfile
	Jar() http.CookieJar
}

// ProxyPicker hands out outbound proxies and receives their outcome
type ProxyPicker interface {
	Next() (*url.URL, bool)
	ReportSuccess(u *url.URL, latency time.Duration)
	ReportFailure(u *url.URL)
}

// Page is a fetched and decoded document
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       []byte
	HTML       string
}

// FetchOptions tunes a single Get
type FetchOptions struct {
	Mobile   bool
	Identity Identity
	Headers  map[string]string
}

// FetcherConfig configures a Fetcher
type FetcherConfig struct {
	Timeout        time.Duration
	TLSFingerprint bool
	RespectRobots  bool
	HostRPS        float64
	MaxRedirects   int
	Retry          RetryConfig
}

// Fetcher performs plain HTTP GETs with browser-like headers, optional TLS
// fingerprinting and a per-host rate limit
type Fetcher struct {
	cfg           FetcherConfig
	rotator       *HeaderRotator
	fingerprinter *TLSFingerprinter
	robots        *RobotsChecker
	proxies       ProxyPicker

	mu         sync.Mutex
	transports map[string]http.RoundTripper
	limiters   map[string]*rate.Limiter
}

// NewFetcher creates a fetcher. proxies may be nil.
func NewFetcher(cfg FetcherConfig, proxies ProxyPicker) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	f := &Fetcher{
		cfg:           cfg,
		rotator:       NewHeaderRotator(),
		fingerprinter: NewTLSFingerprinter(),
		proxies:       proxies,
		transports:    make(map[string]http.RoundTripper),
		limiters:      make(map[string]*rate.Limiter),
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(&http.Client{Timeout: cfg.Timeout}, RobotsAgent)
	}
	return f
}

// Get fetches rawURL, retrying transient failures, and decodes the body
func (f *Fetcher) Get(ctx context.Context, rawURL string, opts FetchOptions) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, eris.Errorf("fetch: invalid url %q", rawURL)
	}

	if f.robots != nil && !f.robots.Allowed(ctx, rawURL) {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrDisallowedByRobots)
	}

	retryCfg := f.cfg.Retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = RetryLogger("http", "get")
	}

	return Retry(ctx, retryCfg, func(ctx context.Context) (*Page, error) {
		if err := f.limiter(u.Hostname()).Wait(ctx); err != nil {
			return nil, Permanent(err)
		}
		return f.do(ctx, rawURL, opts)
	})
}

func (f *Fetcher) do(ctx context.Context, rawURL string, opts FetchOptions) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, Permanent(eris.Wrap(err, "fetch: build request"))
	}

	profile, tlsProfile := f.profiles(opts)
	ApplyHeaders(req, profile)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	var proxyURL *url.URL
	if f.proxies != nil {
		if p, ok := f.proxies.Next(); ok {
			proxyURL = p
		}
	}

	client := &http.Client{
		Transport: f.transport(tlsProfile, proxyURL),
		Timeout:   f.cfg.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= f.cfg.MaxRedirects {
				return eris.Errorf("stopped after %d redirects", f.cfg.MaxRedirects)
			}
			return nil
		},
	}
	if opts.Identity != nil {
		client.Jar = opts.Identity.Jar()
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if proxyURL != nil {
			f.proxies.ReportFailure(proxyURL)
		}
		if ctx.Err() != nil {
			return nil, Permanent(err)
		}
		return nil, &TransientError{Err: eris.Wrapf(err, "fetch %s", rawURL)}
	}
	defer resp.Body.Close()

	if proxyURL != nil {
		f.proxies.ReportSuccess(proxyURL, time.Since(start))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, ClassifyStatus(req.URL.Host, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransientError{Err: eris.Wrap(err, "fetch: read body")}
	}

	final := resp.Request.URL.String()
	zap.L().Debug("fetched page",
		zap.String("url", rawURL),
		zap.String("final_url", final),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Page{
		URL:        rawURL,
		FinalURL:   final,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		HTML:       Decode(body, resp.Header.Get("Content-Type"), final),
	}, nil
}

func (f *Fetcher) profiles(opts FetchOptions) (BrowserProfile, TLSProfile) {
	if opts.Identity != nil {
		return opts.Identity.Header(), opts.Identity.TLS()
	}
	if opts.Mobile {
		return IPhoneProfile(), TLSProfileFor(IPhoneProfile().Name)
	}
	tp := f.fingerprinter.GetRandomProfile()
	return f.fingerprinter.GetMatchingHeaderProfile(tp), tp
}

// TLSProfileFor returns the handshake that matches a header profile name
func TLSProfileFor(header string) TLSProfile {
	for _, p := range tlsProfiles {
		if p.Header == header {
			return p
		}
	}
	return tlsProfiles[0]
}

// transport returns a cached round tripper. Proxied requests use the
// standard handshake because net/http tunnels them itself.
func (f *Fetcher) transport(profile TLSProfile, proxyURL *url.URL) http.RoundTripper {
	key := "default"
	switch {
	case proxyURL != nil:
		key = "proxy:" + proxyURL.String()
	case f.cfg.TLSFingerprint:
		key = profile.Name
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transports[key]; ok {
		return t
	}
	var t http.RoundTripper
	switch {
	case proxyURL != nil:
		pt := http.DefaultTransport.(*http.Transport).Clone()
		pt.Proxy = http.ProxyURL(proxyURL)
		t = pt
	case f.cfg.TLSFingerprint:
		t = f.fingerprinter.CreateTransport(profile, nil)
	default:
		t = http.DefaultTransport.(*http.Transport).Clone()
	}
	f.transports[key] = t
	return t
}

// CloseIdleConnections drops idle keep-alive connections on every cached
// transport
func (f *Fetcher) CloseIdleConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.transports {
		if c, ok := t.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[host]; ok {
		return l
	}
	limit := rate.Inf
	if f.cfg.HostRPS > 0 {
		limit = rate.Limit(f.cfg.HostRPS)
	}
	l := rate.NewLimiter(limit, 1)
	f.limiters[host] = l
	return l
}
