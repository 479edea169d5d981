// Package renderer drives a stealth headless Chrome through CSR product pages.
package renderer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/identity"
	"github.com/BenjaminSRussell/shopscout/internal/persona"
	"github.com/BenjaminSRussell/shopscout/internal/selectors"
	"github.com/BenjaminSRussell/shopscout/internal/types"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

// Browser renders a product page and returns its validated DOM snapshot
type Browser interface {
	Render(ctx context.Context, url string, id types.ResolvedIdentity) (*Snapshot, error)
}

// Driver opens browser tabs. release must always be called.
type Driver interface {
	Open(ctx context.Context, opts LaunchOptions) (tab Tab, release func(), err error)
}

// LaunchOptions configure one browser process
type LaunchOptions struct {
	Headless  bool
	ExecPath  string
	ProxyURL  string
	UserAgent string
	Mobile    bool
}

// SessionOptions tune a single session
type SessionOptions struct {
	NavTimeout  time.Duration
	MaxAttempts int
	ScrollSteps int
	ScrollPause time.Duration
	Humanize    bool
	ClickReview bool
	RequireCDN  bool
	Thresholds  selectors.Thresholds
	TitleRules  *validate.TitleRules

	// Mobile launches the browser with a mobile user agent and viewport
	Mobile bool
}

// Config configures a Launcher
type Config struct {
	Headless   bool
	ExecPath   string
	NavTimeout time.Duration
	CSRTimeout time.Duration

	// MaxReloads caps page loads on Naver stores, which rate-limit and
	// serve transient block pages
	MaxReloads  int
	ClickReview bool
	Humanize    bool
	Thresholds  selectors.Thresholds
	Registry    *selectors.Registry
}

// DefaultConfig returns production settings
func DefaultConfig() Config {
	return Config{
		Headless:    true,
		NavTimeout:  20 * time.Second,
		CSRTimeout:  45 * time.Second,
		MaxReloads:  3,
		ClickReview: true,
		Humanize:    true,
		Thresholds:  selectors.DefaultThresholds(),
	}
}

// Option customises a Launcher
type Option func(*Launcher)

// WithDriver replaces the chromedp driver
func WithDriver(d Driver) Option {
	return func(l *Launcher) { l.driver = d }
}

// WithSleeper replaces the wall-clock sleeper used for pacing
func WithSleeper(s Sleeper) Option {
	return func(l *Launcher) { l.sleep = s }
}

// WithProxy sets an outbound proxy for every launched browser
func WithProxy(proxyURL string) Option {
	return func(l *Launcher) { l.proxyURL = proxyURL }
}

// Launcher launches a fresh browser per session
type Launcher struct {
	cfg      Config
	driver   Driver
	sleep    Sleeper
	rotator  *shttp.HeaderRotator
	proxyURL string

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLauncher creates a launcher backed by chromedp unless a driver option is given
func NewLauncher(cfg Config, opts ...Option) *Launcher {
	def := DefaultConfig()
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = def.NavTimeout
	}
	if cfg.CSRTimeout <= 0 {
		cfg.CSRTimeout = def.CSRTimeout
	}
	if cfg.MaxReloads <= 0 {
		cfg.MaxReloads = def.MaxReloads
	}
	if cfg.Thresholds == (selectors.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.Registry == nil {
		cfg.Registry = selectors.Default()
	}

	l := &Launcher{
		cfg:     cfg,
		driver:  chromedpDriver{},
		sleep:   sleepCtx,
		rotator: shttp.NewHeaderRotator(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithBrowserSession launches a browser, opens url in a new tab and runs fn.
// The tab and browser are released when fn returns, whatever happens.
func (l *Launcher) WithBrowserSession(ctx context.Context, url string, opts SessionOptions, fn func(ctx context.Context, s *Session) error) (err error) {
	profile := l.rotator.GetRandomProfile(opts.Mobile)

	tab, release, err := l.driver.Open(ctx, LaunchOptions{
		Headless:  l.cfg.Headless,
		ExecPath:  l.cfg.ExecPath,
		ProxyURL:  l.proxyURL,
		UserAgent: profile.UserAgent,
		Mobile:    profile.Mobile,
	})
	if err != nil {
		return eris.Wrap(err, "renderer: launch browser")
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("renderer: panic in browser session: %v", r)
		}
	}()

	l.mu.Lock()
	seed := l.rng.Int63()
	l.mu.Unlock()

	s := &Session{
		tab:   tab,
		url:   url,
		opts:  opts,
		sleep: l.sleep,
		rng:   rand.New(rand.NewSource(seed)),
	}
	return fn(ctx, s)
}

// SessionOptionsFor derives per-store session settings
func (l *Launcher) SessionOptionsFor(rawURL string, st types.StoreType) SessionOptions {
	opts := SessionOptions{
		NavTimeout:  l.cfg.NavTimeout,
		MaxAttempts: 1,
		ScrollSteps: 8,
		ScrollPause: 400 * time.Millisecond,
		Humanize:    l.cfg.Humanize,
		ClickReview: l.cfg.ClickReview,
		RequireCDN:  st.IsNaver(),
		Thresholds:  l.cfg.Thresholds,
		Mobile:      identity.IsMobileHost(rawURL),
	}
	if identity.IsCSRHeavy(rawURL, st) {
		opts.NavTimeout = l.cfg.CSRTimeout
	}
	if st == types.StoreSmartStore || st == types.StoreBrandStore {
		opts.MaxAttempts = l.cfg.MaxReloads
	}
	return opts
}

// Render loads url, scrolls, optionally opens the review tab and snapshots
// the DOM with the store's selector table
func (l *Launcher) Render(ctx context.Context, url string, id types.ResolvedIdentity) (*Snapshot, error) {
	opts := l.SessionOptionsFor(url, id.StoreType)
	table := l.cfg.Registry.For(id.StoreType)

	var snap *Snapshot
	err := l.WithBrowserSession(ctx, url, opts, func(ctx context.Context, s *Session) error {
		kind, marker, err := s.Load(ctx)
		if err != nil {
			return err
		}
		if kind == validate.PageNotFound {
			snap = &Snapshot{URL: url, Page: kind, PageMarker: marker, Loads: s.Loads()}
			return nil
		}

		if err := s.Scroll(ctx, opts.ScrollSteps); err != nil {
			return err
		}
		if opts.ClickReview {
			if _, err := s.ClickReviewTab(ctx, table.ReviewTabKeywords, l.cfg.Thresholds.ReviewTabTextRunes); err != nil {
				zap.L().Debug("review tab click failed", zap.String("url", url), zap.Error(err))
			}
		}

		snap, err = s.Snapshot(ctx, table)
		if err != nil {
			return err
		}
		if kind != validate.PageOK {
			snap.Page, snap.PageMarker = kind, marker
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("page rendered",
		zap.String("url", url),
		zap.String("table", table.Name+"@"+table.Version),
		zap.String("page", snap.Page.String()),
		zap.Int("loads", snap.Loads),
		zap.Int("images", len(snap.Images)),
	)
	return snap, nil
}

// chromedpDriver launches one Chrome process per Open
type chromedpDriver struct{}

func (chromedpDriver) Open(ctx context.Context, opts LaunchOptions) (Tab, func(), error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.Mobile {
		allocOpts = append(allocOpts, chromedp.WindowSize(390, 844))
	} else {
		allocOpts = append(allocOpts, chromedp.WindowSize(1920, 1080))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.ProxyURL != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	release := func() {
		tabCancel()
		allocCancel()
	}

	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS + stealthOverrides).Do(ctx); err != nil {
			return err
		}
		if err := emulation.SetUserAgentOverride(opts.UserAgent).
			WithAcceptLanguage("ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7").
			Do(ctx); err != nil {
			return err
		}
		expires := cdp.TimeSinceEpoch(time.Now().Add(365 * 24 * time.Hour))
		return network.SetCookie("NNB", persona.NNB()).
			WithDomain(".naver.com").
			WithPath("/").
			WithExpires(&expires).
			Do(ctx)
	}))
	if err != nil {
		release()
		return nil, func() {}, eris.Wrap(err, "renderer: prepare tab")
	}
	return &chromedpTab{ctx: tabCtx}, release, nil
}

// chromedpTab runs actions against the tab context. Per-call deadlines from
// ctx are honoured by racing the action against ctx.
type chromedpTab struct {
	ctx context.Context
}

func (t *chromedpTab) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (t *chromedpTab) Navigate(ctx context.Context, url string) error {
	return t.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (t *chromedpTab) Reload(ctx context.Context) error {
	return t.run(ctx, chromedp.Reload(), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (t *chromedpTab) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	return t.run(ctx, chromedp.Evaluate(script, out))
}

func (t *chromedpTab) MouseMove(ctx context.Context, x, y float64) error {
	return t.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}
