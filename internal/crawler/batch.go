package crawler

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// BatchItem is the outcome of one URL in a batch
type BatchItem struct {
	URL     string
	Product *types.ExtractedProduct
	Cached  bool
	Err     error
}

// CrawlBatch crawls urls with at most concurrency crawls in flight.
// Duplicate URLs are crawled once. onResult, if set, is called from the
// worker goroutines and must be safe for concurrent use. Only context
// cancellation makes CrawlBatch return an error.
func (c *Crawler) CrawlBatch(ctx context.Context, urls []string, creds types.Credentials, concurrency int, onResult func(BatchItem)) (types.BatchResults, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	frontier := NewFrontier()
	for _, u := range urls {
		if !frontier.Add(u) {
			zap.L().Debug("duplicate batch url skipped", zap.String("url", u))
		}
	}

	var (
		mu      sync.Mutex
		results types.BatchResults
	)
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for ctx.Err() == nil {
		u, ok := frontier.Next()
		if !ok {
			break
		}
		g.Go(func() error {
			p, cached, err := c.crawl(ctx, types.CrawlTarget{URL: u, Credentials: creds})
			frontier.MarkProcessed()

			mu.Lock()
			results.Total++
			switch {
			case err != nil:
				results.Failed++
			case cached:
				results.Cached++
				results.Succeeded++
			default:
				results.Succeeded++
			}
			mu.Unlock()

			if onResult != nil {
				onResult(BatchItem{URL: u, Product: p, Cached: cached, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	queued, processed := frontier.Stats()
	zap.L().Info("batch finished",
		zap.Int("queued", queued),
		zap.Int("processed", processed),
		zap.Int("succeeded", results.Succeeded),
		zap.Int("failed", results.Failed),
		zap.Int("cached", results.Cached),
	)
	return results, ctx.Err()
}
