package crawler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

func TestFrontierDedupsCanonicalURLs(t *testing.T) {
	f := NewFrontier()
	assert.True(t, f.Add(genericURL))
	assert.False(t, f.Add(genericURL+"#reviews"))
	assert.False(t, f.Add(genericURL+"?utm_source=newsletter"))
	assert.False(t, f.Add("  "))
	assert.True(t, f.Add(genericURL+"?option=red"))
	assert.Equal(t, 2, f.Size())
}

func TestFrontierRoundRobinByHost(t *testing.T) {
	f := NewFrontier()
	f.Add("https://a.example.com/1")
	f.Add("https://a.example.com/2")
	f.Add("https://a.example.com/3")
	f.Add("https://b.example.com/1")

	var got []string
	for {
		u, ok := f.Next()
		if !ok {
			break
		}
		got = append(got, u)
		f.MarkProcessed()
	}
	assert.Equal(t, []string{
		"https://a.example.com/1",
		"https://b.example.com/1",
		"https://a.example.com/2",
		"https://a.example.com/3",
	}, got)

	queued, processed := f.Stats()
	assert.Equal(t, 4, queued)
	assert.Equal(t, 4, processed)
}

func TestCrawlBatch(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{genericURL: productPage}}
	c := newTestCrawler(WithFetcher(fetcher))

	var (
		mu    sync.Mutex
		items []BatchItem
	)
	res, err := c.CrawlBatch(context.Background(),
		[]string{genericURL, genericURL + "#dup", "https://shop.example.com/missing", "ftp://bad"},
		types.Credentials{}, 2,
		func(it BatchItem) {
			mu.Lock()
			items = append(items, it)
			mu.Unlock()
		})
	require.NoError(t, err)

	assert.Equal(t, types.BatchResults{Total: 3, Succeeded: 1, Failed: 2}, res)
	assert.Len(t, items, 3)
}

func TestCrawlBatchCancelled(t *testing.T) {
	c := newTestCrawler(WithFetcher(&fakeFetcher{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.CrawlBatch(ctx, []string{genericURL}, types.Credentials{}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Total)
}
