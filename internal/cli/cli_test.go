package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/shopscout/internal/searchapi"
	"github.com/BenjaminSRussell/shopscout/internal/storage"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func seedHistory(t *testing.T, dir string) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(filepath.Join(dir, "shopscout.db"))
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	require.NoError(t, db.SaveRecord(types.CrawlRecord{
		CrawlID:    "c1",
		URL:        "https://smartstore.naver.com/everjoy/products/4812345678",
		StoreType:  types.StoreSmartStore,
		Title:      "에버조이 건식 좌훈 족욕기 JOY-010",
		Price:      "39,800원",
		Source:     types.SourceStealthDOM,
		ImageCount: 12,
		Elapsed:    3 * time.Second,
		CrawledAt:  now.Add(-time.Minute),
	}))
	require.NoError(t, db.SaveRecord(types.CrawlRecord{
		CrawlID:   "c2",
		URL:       "https://www.coupang.com/vp/products/999",
		StoreType: types.StoreCoupang,
		Error:     "product not found",
		ErrorKind: "not_found",
		Elapsed:   9 * time.Second,
		CrawledAt: now,
	}))
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"crawl", "article", "search", "batch", "history", "export"} {
		assert.Contains(t, names, want)
	}
}

func TestFlagDefaults(t *testing.T) {
	defaults := []struct {
		flag, value string
		lookup      func(string) string
	}{
		{"save", "false", func(n string) string { return crawlCmd.Flags().Lookup(n).DefValue }},
		{"kind", "shop", func(n string) string { return searchCmd.Flags().Lookup(n).DefValue }},
		{"display", "10", func(n string) string { return searchCmd.Flags().Lookup(n).DefValue }},
		{"concurrency", "2", func(n string) string { return batchCmd.Flags().Lookup(n).DefValue }},
		{"limit", "20", func(n string) string { return historyCmd.Flags().Lookup(n).DefValue }},
		{"from", "sqlite", func(n string) string { return exportCmd.Flags().Lookup(n).DefValue }},
		{"data-dir", "./data", func(n string) string { return rootCmd.PersistentFlags().Lookup(n).DefValue }},
	}
	for _, d := range defaults {
		assert.Equal(t, d.value, d.lookup(d.flag), d.flag)
	}
}

func TestCrawlRequiresURL(t *testing.T) {
	_, err := run(t, "--data-dir", t.TempDir(), "crawl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"url"`)
}

func TestSearchWithoutCredentials(t *testing.T) {
	t.Setenv("SHOPSCOUT_CREDENTIALS_SEARCH_CLIENT_ID", "")
	t.Setenv("SHOPSCOUT_CREDENTIALS_SEARCH_CLIENT_SECRET", "")

	_, err := run(t, "--data-dir", t.TempDir(), "search", "--query", "족욕기")
	assert.ErrorIs(t, err, searchapi.ErrNoCredentials)
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	seedHistory(t, dir)

	out, err := run(t, "--data-dir", dir, "history", "--failed=false", "--stats=false", "--store-type=")
	require.NoError(t, err)
	assert.Contains(t, out, "에버조이 건식 좌훈 족욕기 JOY-010")
	assert.Contains(t, out, "not_found: product not found")

	out, err = run(t, "--data-dir", dir, "history", "--failed")
	require.NoError(t, err)
	assert.NotContains(t, out, "JOY-010")
	assert.Contains(t, out, "coupang")

	out, err = run(t, "--data-dir", dir, "history", "--failed=false", "--stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 2, Succeeded: 1, Failed: 1")
}

func TestHistoryEmpty(t *testing.T) {
	out, err := run(t, "--data-dir", t.TempDir(), "history", "--failed=false", "--stats=false")
	require.NoError(t, err)
	assert.Contains(t, out, "No crawls recorded")
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	seedHistory(t, dir)

	out, err := run(t, "--data-dir", dir, "export", "--output", "crawls.csv", "--format=", "--from", "sqlite", "--failed=false")
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 crawls")

	data, err := os.ReadFile(filepath.Join(dir, "crawls.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, string(data), "JOY-010")
}

func TestExportUnknownSource(t *testing.T) {
	_, err := run(t, "--data-dir", t.TempDir(), "export", "--output", "crawls.json", "--from", "redis")
	assert.ErrorContains(t, err, "unknown record source")
}

func TestReadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte(`
# joy
https://smartstore.naver.com/everjoy/products/4812345678

  https://www.coupang.com/vp/products/999  
`), 0644))

	urls, err := readURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://smartstore.naver.com/everjoy/products/4812345678",
		"https://www.coupang.com/vp/products/999",
	}, urls)

	_, err = readURLs(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestBatchNeedsURLSource(t *testing.T) {
	_, err := run(t, "--data-dir", t.TempDir(), "batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")
	assert.Contains(t, err.Error(), "sitemap")
}
