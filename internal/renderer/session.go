package renderer

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/images"
	"github.com/BenjaminSRussell/shopscout/internal/parser"
	"github.com/BenjaminSRussell/shopscout/internal/selectors"
	"github.com/BenjaminSRussell/shopscout/internal/types"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

// Tab is one browser page. The chromedp driver implements it; tests use fakes.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Evaluate(ctx context.Context, script string, out any) error
	MouseMove(ctx context.Context, x, y float64) error
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Session drives one tab through load, scroll and extraction
type Session struct {
	tab   Tab
	url   string
	opts  SessionOptions
	sleep Sleeper
	rng   *rand.Rand
	loads int
}

// Loads returns how many times the page was navigated or reloaded
func (s *Session) Loads() int {
	return s.loads
}

// Load navigates to the session URL and checks the page for error
// markers. Blocked pages are reloaded after a growing random wait while
// attempts remain; not-found pages are returned at once since a reload
// will not bring the product back.
func (s *Session) Load(ctx context.Context) (validate.PageKind, string, error) {
	attempts := max(s.opts.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		navCtx, cancel := context.WithTimeout(ctx, s.opts.NavTimeout)
		var err error
		if attempt == 1 {
			err = s.tab.Navigate(navCtx, s.url)
		} else {
			err = s.tab.Reload(navCtx)
		}
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return validate.PageOK, "", ctx.Err()
			}
			return validate.PageOK, "", eris.Wrapf(err, "renderer: load %s", s.url)
		}
		s.loads++

		if err := s.humanize(ctx); err != nil {
			return validate.PageOK, "", err
		}

		var text string
		if err := s.tab.Evaluate(ctx, bodyTextScript, &text); err != nil {
			return validate.PageOK, "", eris.Wrap(err, "renderer: read body text")
		}

		kind, marker := validate.DetectErrorPage(text)
		if kind != validate.PageBlocked || attempt >= attempts {
			return kind, marker, nil
		}

		wait := s.reloadWait(attempt)
		zap.L().Warn("error page detected, reloading",
			zap.String("url", s.url),
			zap.String("marker", marker),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
		)
		if err := s.sleep(ctx, wait); err != nil {
			return validate.PageOK, "", err
		}
	}
}

// reloadWait grows with the attempt and stays within 3–10s
func (s *Session) reloadWait(attempt int) time.Duration {
	base := 3*time.Second + time.Duration(attempt-1)*2*time.Second
	d := base + time.Duration(s.rng.Int63n(int64(2*time.Second)))
	return min(d, 10*time.Second)
}

// humanize pauses 1–3s and moves the mouse before any DOM read
func (s *Session) humanize(ctx context.Context) error {
	if !s.opts.Humanize {
		return nil
	}
	d := time.Second + time.Duration(s.rng.Int63n(int64(2*time.Second)))
	if err := s.sleep(ctx, d); err != nil {
		return err
	}
	x := 100 + s.rng.Float64()*700
	y := 100 + s.rng.Float64()*500
	if err := s.tab.MouseMove(ctx, x, y); err != nil {
		zap.L().Debug("mouse move failed", zap.Error(err))
	}
	return nil
}

// Scroll walks the page in steps to trigger lazy-loaded images, then jumps
// to the bottom
func (s *Session) Scroll(ctx context.Context, steps int) error {
	for i := 0; i < steps; i++ {
		script := "window.scrollBy(0, " + strconv.Itoa(400+i*100) + ")"
		if err := s.tab.Evaluate(ctx, script, nil); err != nil {
			return eris.Wrap(err, "renderer: scroll")
		}
		if err := s.sleep(ctx, s.opts.ScrollPause); err != nil {
			return err
		}
	}
	if err := s.tab.Evaluate(ctx, scrollToBottomScript, nil); err != nil {
		return eris.Wrap(err, "renderer: scroll")
	}
	return s.sleep(ctx, s.opts.ScrollPause)
}

// ClickReviewTab activates a review tab so review photos render, then
// scrolls a little more. It reports whether a tab was clicked.
func (s *Session) ClickReviewTab(ctx context.Context, keywords []string, maxRunes int) (bool, error) {
	if len(keywords) == 0 {
		return false, nil
	}
	var clicked bool
	if err := s.tab.Evaluate(ctx, clickReviewTabScript(keywords, maxRunes), &clicked); err != nil {
		return false, eris.Wrap(err, "renderer: click review tab")
	}
	if !clicked {
		return false, nil
	}
	if err := s.sleep(ctx, 1500*time.Millisecond); err != nil {
		return true, err
	}
	return true, s.Scroll(ctx, 3)
}

// rawImage and rawSnapshot mirror the object returned by snapshotJS
type rawImage struct {
	URL      string `json:"url"`
	Kind     string `json:"kind"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Alt      string `json:"alt"`
	Excluded bool   `json:"excluded"`
}

type rawTitle struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

type rawSnapshot struct {
	URL     string     `json:"url"`
	Titles  []rawTitle `json:"titles"`
	Price   string     `json:"price"`
	Images  []rawImage `json:"images"`
	Spec    string     `json:"spec"`
	Reviews []string   `json:"reviews"`
	Text    string     `json:"text"`
}

// Snapshot is the validated DOM state of a rendered product page
type Snapshot struct {
	URL      string
	FinalURL string

	Title    string
	TitleVia string
	Price    string
	Spec     string
	Reviews  []string

	// Images are gallery and product-area photos, ReviewImages the photos
	// found under review selectors
	Images       []string
	ReviewImages []string

	Page       validate.PageKind
	PageMarker string
	Loads      int
}

// IsErrorPage reports whether the final page was a block or not-found page
func (s *Snapshot) IsErrorPage() bool {
	return s.Page != validate.PageOK
}

// Snapshot extracts title, price and images using the selector table
func (s *Session) Snapshot(ctx context.Context, table selectors.Table) (*Snapshot, error) {
	var raw rawSnapshot
	if err := s.tab.Evaluate(ctx, snapshotScript(table, s.opts.Thresholds, types.MaxReviews), &raw); err != nil {
		return nil, eris.Wrap(err, "renderer: snapshot")
	}
	return buildSnapshot(s.url, raw, s.opts, s.loads), nil
}

func buildSnapshot(url string, raw rawSnapshot, opts SessionOptions, loads int) *Snapshot {
	snap := &Snapshot{
		URL:      url,
		FinalURL: raw.URL,
		Spec:     raw.Spec,
		Reviews:  raw.Reviews,
		Loads:    loads,
	}
	snap.Page, snap.PageMarker = validate.DetectErrorPage(raw.Text)

	rules := opts.TitleRules
	if rules == nil {
		rules = validate.DefaultTitleRules()
	}
	for _, t := range raw.Titles {
		candidate := validate.CleanTitle(t.Text)
		if reason := rules.CheckTitle(candidate); reason != validate.OK {
			zap.L().Debug("title candidate rejected",
				zap.String("selector", t.Selector),
				zap.String("candidate", candidate),
				zap.String("reason", string(reason)),
			)
			continue
		}
		snap.Title, snap.TitleVia = candidate, t.Selector
		break
	}

	if p := strings.TrimSpace(raw.Price); p != "" {
		snap.Price = parser.FormatPrice(p, "")
	}

	filter := images.NewFilter(opts.Thresholds, opts.RequireCDN)
	var photos, reviews []images.Candidate
	for _, img := range raw.Images {
		c := images.Candidate{
			URL:      img.URL,
			Kind:     images.Kind(img.Kind),
			Width:    img.Width,
			Height:   img.Height,
			Alt:      img.Alt,
			Excluded: img.Excluded,
		}
		if c.Kind == images.KindReview {
			reviews = append(reviews, c)
		} else {
			photos = append(photos, c)
		}
	}
	snap.Images = filter.Clean(photos, 0)
	snap.ReviewImages = filter.Clean(reviews, opts.Thresholds.MaxReviewImages)
	return snap
}
