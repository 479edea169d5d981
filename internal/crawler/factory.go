package crawler

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/cache"
	"github.com/BenjaminSRussell/shopscout/internal/config"
	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/mobileapi"
	"github.com/BenjaminSRussell/shopscout/internal/persona"
	"github.com/BenjaminSRussell/shopscout/internal/proxy"
	"github.com/BenjaminSRussell/shopscout/internal/renderer"
	"github.com/BenjaminSRussell/shopscout/internal/searchapi"
	"github.com/BenjaminSRussell/shopscout/internal/selectors"
	"github.com/BenjaminSRussell/shopscout/internal/storage"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// Resources are the long-lived pieces NewFromConfig opened. Close releases
// them after the crawler is done.
type Resources struct {
	Cache    cache.Cache
	Recorder storage.Recorder
	Proxies  *proxy.Manager
	Fetcher  *shttp.Fetcher
}

// Close closes the cache and the recorder and drops idle fetcher
// connections
func (r *Resources) Close() error {
	if r.Fetcher != nil {
		r.Fetcher.CloseIdleConnections()
	}
	var errs []error
	if r.Cache != nil {
		errs = append(errs, r.Cache.Close())
	}
	if r.Recorder != nil {
		errs = append(errs, r.Recorder.Close())
	}
	return errors.Join(errs...)
}

// NewFromConfig wires a production crawler from configuration
func NewFromConfig(cfg *config.Config) (*Crawler, *Resources, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, nil, eris.Wrap(err, "invalid configuration")
	}

	res := &Resources{}
	opts := []Option{
		WithPersonas(persona.NewPool(30*time.Minute, 50)),
		WithMobile(mobileapi.New(cfg.Mobile)),
		WithSearchFactory(func(creds types.Credentials) (ProductSearcher, error) {
			return searchapi.New(cfg.Search, creds)
		}),
	}

	var picker shttp.ProxyPicker
	if len(cfg.Proxy.URLs) > 0 {
		m, err := proxy.NewManager(cfg.Proxy.URLs, cfg.Proxy.MaxFailCount)
		if err != nil {
			return nil, nil, err
		}
		res.Proxies = m
		picker = m
		zap.L().Info("proxy rotation enabled", zap.Int("proxies", m.Len()))
	}

	res.Fetcher = shttp.NewFetcher(shttp.FetcherConfig{
		Timeout:        cfg.HTTPTimeout(),
		TLSFingerprint: cfg.HTTP.TLSFingerprint,
		RespectRobots:  cfg.HTTP.RespectRobots,
		HostRPS:        cfg.HTTP.HostRPS,
		MaxRedirects:   cfg.HTTP.MaxRedirects,
		Retry:          shttp.DefaultRetryConfig(),
	}, picker)
	opts = append(opts,
		WithFetcher(res.Fetcher),
		WithResolver(shttp.NewShortURLResolver(&http.Client{Timeout: cfg.HTTPTimeout()}, cfg.HTTP.MaxRedirects)),
	)

	registry := selectors.NewDefault()
	if v := cfg.Crawl.SelectorVersion; v != "" {
		registry.Pin(v)
		zap.L().Info("selector tables pinned", zap.String("version", v))
	}
	thresholds := selectors.DefaultThresholds()

	if cfg.Browser.Enabled {
		var lopts []renderer.Option
		if res.Proxies != nil {
			if u, ok := res.Proxies.Next(); ok {
				lopts = append(lopts, renderer.WithProxy(u.String()))
			}
		}
		opts = append(opts, WithBrowser(renderer.NewLauncher(renderer.Config{
			Headless:    cfg.Browser.Headless,
			ExecPath:    cfg.Browser.ExecPath,
			NavTimeout:  time.Duration(cfg.Browser.TimeoutSecs) * time.Second,
			CSRTimeout:  time.Duration(cfg.Browser.CSRTimeoutSecs) * time.Second,
			MaxReloads:  cfg.Browser.MaxReloads,
			ClickReview: cfg.Browser.ClickReviewTab,
			Humanize:    true,
			Thresholds:  thresholds,
			Registry:    registry,
		}, lopts...)))
	}

	rc, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open result cache")
	}
	res.Cache = rc
	opts = append(opts, WithCache(rc))

	if cfg.Store.Enabled {
		rec, err := openRecorder(cfg)
		if err != nil {
			rc.Close()
			return nil, nil, err
		}
		res.Recorder = rec
		opts = append(opts, WithRecorder(rec))
	}

	c := New(Config{
		Timeout:         cfg.CrawlTimeout(),
		ImageTopUpBelow: cfg.Crawl.ImageTopUpBelow,
		MinArticleRunes: cfg.Crawl.MinArticleRunes,
		Thresholds:      thresholds,
		Registry:        registry,
	}, opts...)
	return c, res, nil
}

// openRecorder tees crawl records into the JSONL log and the SQLite history
func openRecorder(cfg *config.Config) (storage.Recorder, error) {
	log, err := storage.New(cfg.DataDir)
	if err != nil {
		return nil, eris.Wrap(err, "open crawl log")
	}
	if cfg.SQLitePath() == "" {
		return log, nil
	}
	db, err := storage.NewSQLiteStorage(cfg.SQLitePath())
	if err != nil {
		log.Close()
		return nil, eris.Wrap(err, "open crawl history")
	}
	return storage.Tee(log, db), nil
}

// validateConfig checks what the crawler needs beyond config.Validate
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return eris.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DataDir == "" {
		return eris.New("data directory is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return eris.Wrap(err, "create data directory")
	}
	if cfg.Crawl.TimeoutSecs < 0 {
		return eris.Errorf("crawl timeout cannot be negative, got %d", cfg.Crawl.TimeoutSecs)
	}
	if cfg.Crawl.TimeoutSecs > 0 && cfg.Crawl.TimeoutSecs < cfg.HTTP.TimeoutSecs {
		return eris.Errorf("crawl timeout (%ds) shorter than http timeout (%ds)", cfg.Crawl.TimeoutSecs, cfg.HTTP.TimeoutSecs)
	}
	return nil
}
