package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

func sampleRecords() []types.CrawlRecord {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p := types.NewExtractedProduct("a", "https://smartstore.naver.com/examplestore/products/123456")
	p.Title = "[에버조이] 건식 좌훈 족욕기 (JOY-010)"
	p.Price = "39,000원"
	p.Brand = "에버조이"
	p.MallName = "에버조이 공식몰"
	p.Images = []string{"https://shop-phinf.pstatic.net/a.jpg", "https://shop-phinf.pstatic.net/b.jpg"}
	return []types.CrawlRecord{
		{
			CrawlID: "a", URL: p.SourceURL, StoreType: types.StoreSmartStore,
			Title: p.Title, Price: p.Price, Source: types.SourceJSONLD, ImageCount: 2,
			Elapsed: 1200 * time.Millisecond, CrawledAt: at, Product: p,
		},
		{
			CrawlID: "b", URL: "https://www.coupang.com/vp/products/42", StoreType: types.StoreCoupang,
			Error: "product not found", ErrorKind: "not_found", CrawledAt: at,
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("", "out/products.csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("JSON", "whatever.txt")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml", "")
	assert.Error(t, err)
}

func TestExportJSON(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir)
	require.NoError(t, err)

	require.NoError(t, exporter.Export(sampleRecords(), FormatJSON, "export.json"))

	data, err := os.ReadFile(filepath.Join(dir, "export.json"))
	require.NoError(t, err)
	var got []types.CrawlRecord
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, types.SourceJSONLD, got[0].Source)
	assert.Equal(t, "에버조이 공식몰", got[0].Product.MallName)
}

func TestExportJSONLSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir)
	require.NoError(t, err)

	out := filepath.Join(dir, "products.jsonl")
	require.NoError(t, exporter.Export(sampleRecords(), FormatJSONL, out))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"title":"[에버조이] 건식 좌훈 족욕기 (JOY-010)"`)
}

func TestExportCSV(t *testing.T) {
	dir := t.TempDir()
	exporter, err := NewExporter(dir)
	require.NoError(t, err)

	out := filepath.Join(dir, "export.csv")
	require.NoError(t, exporter.ExportCSV(sampleRecords(), out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "\ufeff"))

	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeaders, rows[0])
	assert.Equal(t, "39,000원", rows[1][4])
	assert.Equal(t, "jsonld", rows[1][7])
	assert.Equal(t, "https://shop-phinf.pstatic.net/a.jpg", rows[1][9])
	assert.Equal(t, "1200", rows[1][11])
	assert.Equal(t, "product not found", rows[2][10])
	assert.Equal(t, "none", rows[2][7])
}
