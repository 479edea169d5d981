package crawler

import (
	"context"
	"time"

	"github.com/BenjaminSRussell/shopscout/internal/types"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

// Verdict is what a stage decides about the crawl
type Verdict int

const (
	// Escalate hands over to the next stage, keeping any partial data
	Escalate Verdict = iota
	// Success ends the pipeline
	Success
	// Skipped means the stage did not apply to this target
	Skipped
	// Abort stops the crawl; only context cancellation produces it
	Abort
)

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Abort:
		return "abort"
	}
	return "escalate"
}

// StageResult is the outcome of one stage. Partial is merged into the
// crawl's product by field confidence; its FieldSources say which source
// produced each field, SourceConfidence covers the rest.
type StageResult struct {
	Partial *types.ExtractedProduct
	Verdict Verdict
	Reason  string
}

func escalate(partial *types.ExtractedProduct, reason string) StageResult {
	return StageResult{Partial: partial, Verdict: Escalate, Reason: reason}
}

func skipped(reason string) StageResult {
	return StageResult{Verdict: Skipped, Reason: reason}
}

// Stage is one extraction strategy in the crawl pipeline. Run never returns
// errors: failures become an Escalate verdict with a reason.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *crawlState) StageResult
}

// Attempt is the log entry of one stage run
type Attempt struct {
	Stage   string        `json:"stage"`
	Verdict Verdict       `json:"-"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// crawlState is shared by the stages of a single crawl
type crawlState struct {
	target  types.CrawlTarget
	url     string
	id      types.ResolvedIdentity
	product *types.ExtractedProduct

	// page is the worst error page seen so far
	page       validate.PageKind
	pageMarker string

	attempts []Attempt

	// search is created on first use; its quota guard lives as long as the crawl
	search    ProductSearcher
	searchErr error
}

func (st *crawlState) notePage(kind validate.PageKind, marker string) {
	if kind > st.page {
		st.page, st.pageMarker = kind, marker
	}
}
