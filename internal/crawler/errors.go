package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BenjaminSRussell/shopscout/internal/types"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

// ProductNotFoundError is returned when no stage produced a valid title.
// Nothing is ever synthesised in its place. Page is the worst error page
// any stage saw.
type ProductNotFoundError struct {
	URL        string
	Identity   types.ResolvedIdentity
	Attempts   []Attempt
	Page       validate.PageKind
	PageMarker string
}

func (e *ProductNotFoundError) Error() string {
	stages := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		stages = append(stages, a.Stage+"="+a.Verdict.String())
	}
	if e.Page != validate.PageOK {
		return fmt.Sprintf("product not found: %s (%s, %s page) [%s]", e.URL, e.Identity.StoreType, e.Page, strings.Join(stages, ", "))
	}
	return fmt.Sprintf("product not found: %s (%s) [%s]", e.URL, e.Identity.StoreType, strings.Join(stages, ", "))
}

// CrawlAbortedError is returned when the context ends mid-crawl
type CrawlAbortedError struct {
	URL   string
	Stage string
	Err   error
}

func (e *CrawlAbortedError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("crawl aborted: %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("crawl aborted in %s stage: %s: %v", e.Stage, e.URL, e.Err)
}

func (e *CrawlAbortedError) Unwrap() error {
	return e.Err
}

// InvalidURLError rejects input that is not an absolute http(s) URL
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.URL, e.Reason)
}

// ContentTooShortError is returned by FetchArticle when the extracted body
// is too short to be the article
type ContentTooShortError struct {
	URL   string
	Runes int
	Min   int
}

func (e *ContentTooShortError) Error() string {
	return fmt.Sprintf("article content too short: %s (%d runes, need %d)", e.URL, e.Runes, e.Min)
}

// ErrorKind maps an orchestrator error onto the short label stored with
// crawl records
func ErrorKind(err error) string {
	var (
		notFound *ProductNotFoundError
		aborted  *CrawlAbortedError
		invalid  *InvalidURLError
		short    *ContentTooShortError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &aborted):
		return "aborted"
	case errors.As(err, &invalid):
		return "invalid_url"
	case errors.As(err, &short):
		return "content_too_short"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "aborted"
	}
	return "error"
}

func aborted(rawURL, stage string, err error) error {
	return &CrawlAbortedError{URL: rawURL, Stage: stage, Err: err}
}
