package crawler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/shopscout/internal/cache"
	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/renderer"
	"github.com/BenjaminSRussell/shopscout/internal/searchapi"
	"github.com/BenjaminSRussell/shopscout/internal/types"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

const (
	smartStoreURL = "https://smartstore.naver.com/examplestore/products/123456"
	mobileURL     = "https://m.smartstore.naver.com/examplestore/products/123456"
	genericURL    = "https://shop.example.com/goods/joy-010"
	joyTitle      = "[에버조이] 건식 좌훈 족욕기 (JOY-010)"
)

var searchCreds = types.Credentials{SearchClientID: "id", SearchClientSecret: "secret"}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
	hook  func(rawURL string)
}

func (f *fakeFetcher) Get(ctx context.Context, rawURL string, _ shttp.FetchOptions) (*shttp.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, rawURL)
	html, ok := f.pages[rawURL]
	f.mu.Unlock()

	if f.hook != nil {
		f.hook(rawURL)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Errorf("fetch %s: status 404", rawURL)
	}
	return &shttp.Page{URL: rawURL, FinalURL: rawURL, StatusCode: 200, HTML: html}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type passResolver struct{}

func (passResolver) Resolve(_ context.Context, rawURL string) string { return rawURL }

type fakeBrowser struct {
	snap  *renderer.Snapshot
	err   error
	panic bool
	calls int
}

func (b *fakeBrowser) Render(_ context.Context, url string, _ types.ResolvedIdentity) (*renderer.Snapshot, error) {
	b.calls++
	if b.panic {
		panic("tab crashed")
	}
	if b.err != nil {
		return nil, b.err
	}
	s := *b.snap
	s.URL = url
	return &s, nil
}

type fakeMobile struct {
	product *types.ExtractedProduct
	calls   int
}

func (m *fakeMobile) FetchByProductID(_ context.Context, id, storeName string, _ types.StoreType) *types.ExtractedProduct {
	m.calls++
	if m.product == nil {
		return nil
	}
	p := *m.product
	return &p
}

type fakeSearcher struct {
	item       *searchapi.Item
	images     []string
	err        error
	exhausted  bool
	shopQuery  []string
	imageCalls int
}

func (s *fakeSearcher) SearchShop(_ context.Context, query string, _ types.ResolvedIdentity) (*searchapi.Item, error) {
	s.shopQuery = append(s.shopQuery, query)
	return s.item, s.err
}

func (s *fakeSearcher) SearchImages(context.Context, string, int) ([]string, error) {
	s.imageCalls++
	return s.images, nil
}

func (s *fakeSearcher) Exhausted() bool { return s.exhausted }

type memRecorder struct {
	mu      sync.Mutex
	records []types.CrawlRecord
}

func (r *memRecorder) SaveRecord(rec types.CrawlRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) Close() error { return nil }

func newTestCrawler(opts ...Option) *Crawler {
	base := []Option{
		WithResolver(passResolver{}),
		WithPersonas(nil),
		WithMobile(nil),
		WithSearchFactory(nil),
	}
	return New(Config{}, append(base, opts...)...)
}

func searchFactory(s *fakeSearcher, created *int) SearchFactory {
	return func(creds types.Credentials) (ProductSearcher, error) {
		*created++
		if !creds.HasSearch() {
			return nil, searchapi.ErrNoCredentials
		}
		return s, nil
	}
}

func naverImages(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "https://shop-phinf.pstatic.net/20260101_" + string(rune('a'+i)) + "/photo.jpg"
	}
	return out
}

const productPage = `<html><head>
<title>족욕기 JOY-010 스페셜 에디션 | 쿠팡</title>
<meta property="og:title" content="에버조이 족욕기 OG 타이틀 JOY-010">
<meta property="og:image" content="https://cdn.example.com/goods/joy010_og.jpg">
<meta property="og:price:amount" content="41000">
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Product","name":"[에버조이] 건식 좌훈 족욕기 (JOY-010)",
 "image":["https://cdn.example.com/goods/joy010_main.jpg"],
 "brand":{"@type":"Brand","name":"에버조이"},
 "offers":{"@type":"Offer","price":"39000","priceCurrency":"KRW"}}
</script>
</head><body><h1>에버조이 족욕기</h1><p>따뜻한 건식 좌훈</p></body></html>`

func TestJSONLDTitleOutranksMeta(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{genericURL: productPage}}
	browser := &fakeBrowser{}
	c := newTestCrawler(WithFetcher(fetcher), WithBrowser(browser))

	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: genericURL})
	require.NoError(t, err)

	assert.Equal(t, joyTitle, p.Title)
	assert.Equal(t, types.SourceJSONLD, p.SourceConfidence)
	assert.Equal(t, "39,000원", p.Price)
	assert.Equal(t, types.SourceJSONLD, p.FieldSources[FieldPrice])
	assert.Equal(t, "에버조이", p.Brand)
	assert.Contains(t, p.Images, "https://cdn.example.com/goods/joy010_main.jpg")
	assert.Contains(t, p.Images, "https://cdn.example.com/goods/joy010_og.jpg")
	assert.False(t, p.IsErrorPage)
	assert.Equal(t, 0, browser.calls, "a static title must short-circuit the browser")
}

func TestAllStagesFailReturnsNotFound(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		mobileURL: `<html><body><p>상품이 존재하지 않습니다</p></body></html>`,
	}}
	browser := &fakeBrowser{snap: &renderer.Snapshot{Page: validate.PageNotFound, PageMarker: "상품이 존재하지 않습니다", Loads: 1}}
	mobile := &fakeMobile{}
	searcher := &fakeSearcher{}
	created := 0
	rec := &memRecorder{}

	c := newTestCrawler(
		WithFetcher(fetcher),
		WithBrowser(browser),
		WithMobile(mobile),
		WithSearchFactory(searchFactory(searcher, &created)),
		WithRecorder(rec),
	)

	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: smartStoreURL, Credentials: searchCreds})
	require.Error(t, err)
	assert.Nil(t, p, "no product may be returned without a valid title")

	var notFound *ProductNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, smartStoreURL, notFound.URL)
	assert.Equal(t, types.StoreSmartStore, notFound.Identity.StoreType)
	assert.Equal(t, validate.PageNotFound, notFound.Page)
	assert.Equal(t, "상품이 존재하지 않습니다", notFound.PageMarker)
	assert.Contains(t, notFound.Error(), "not_found page")

	var stages []string
	for _, a := range notFound.Attempts {
		stages = append(stages, a.Stage)
		assert.Equal(t, Escalate, a.Verdict, a.Stage)
	}
	assert.Equal(t, []string{"cheap", "browser", "mobile", "search"}, stages)
	assert.Equal(t, []string{mobileURL}, fetcher.calls, "naver stores are fetched on the mobile host")
	assert.Equal(t, 1, mobile.calls)
	assert.Equal(t, []string{"examplestore"}, searcher.shopQuery)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "not_found", rec.records[0].ErrorKind)
	assert.Nil(t, rec.records[0].Product)
}

func TestBrowserRescuesClientRenderedPage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		mobileURL: `<html><head><title>스마트스토어</title></head><body><div id="root"></div></body></html>`,
	}}
	browser := &fakeBrowser{snap: &renderer.Snapshot{
		Title:    joyTitle,
		TitleVia: "._22kNQuEXmb",
		Price:    "39,000원",
		Images:   naverImages(3),
		Reviews:  []string{"따뜻하고 좋아요"},
		Loads:    1,
	}}
	mobile := &fakeMobile{}

	c := newTestCrawler(WithFetcher(fetcher), WithBrowser(browser), WithMobile(mobile))
	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: smartStoreURL})
	require.NoError(t, err)

	assert.Equal(t, joyTitle, p.Title)
	assert.Equal(t, types.SourceStealthDOM, p.SourceConfidence)
	assert.Len(t, p.Images, 3)
	assert.Equal(t, []string{"따뜻하고 좋아요"}, p.Reviews)
	assert.Equal(t, 1, browser.calls)
	assert.Equal(t, 0, mobile.calls)
}

func TestBrowserTitleWithFewImagesIsKept(t *testing.T) {
	const coupangURL = "https://www.coupang.com/vp/products/7777"
	browser := &fakeBrowser{snap: &renderer.Snapshot{Title: joyTitle, Images: naverImages(1), Loads: 1}}
	rec := &memRecorder{}
	c := newTestCrawler(WithFetcher(&fakeFetcher{}), WithBrowser(browser), WithRecorder(rec))

	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: coupangURL})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, joyTitle, p.Title)
	assert.Equal(t, types.SourceStealthDOM, p.SourceConfidence)
	assert.Len(t, p.Images, 1)
	assert.False(t, p.IsErrorPage)
	assert.Equal(t, types.StoreCoupang, p.Identity.StoreType)

	require.Len(t, rec.records, 1)
	assert.Empty(t, rec.records[0].ErrorKind)
}

func TestBlockedPageMarksPartialAndError(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		genericURL: `<html><body><p>비정상적인 접근이 감지되었습니다</p></body></html>`,
	}}
	c := newTestCrawler(WithFetcher(fetcher))
	st := &crawlState{url: genericURL, id: types.ResolvedIdentity{StoreType: types.StoreGeneric}, product: types.NewExtractedProduct("", genericURL)}

	res := (&cheapStage{c: c}).Run(context.Background(), st)
	assert.Equal(t, Escalate, res.Verdict)
	require.NotNil(t, res.Partial)
	assert.True(t, res.Partial.IsErrorPage)
	assert.Empty(t, res.Partial.Title)
	assert.Equal(t, validate.PageBlocked, st.page)

	_, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: genericURL})
	var notFound *ProductNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, validate.PageBlocked, notFound.Page)
	assert.NotEmpty(t, notFound.PageMarker)
}

func TestAlwaysCSRSkipsCheapStage(t *testing.T) {
	fetcher := &fakeFetcher{}
	browser := &fakeBrowser{snap: &renderer.Snapshot{Title: joyTitle, Images: naverImages(1)}}
	c := newTestCrawler(WithFetcher(fetcher), WithBrowser(browser))

	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: "https://brandconnect.naver.com/r/abc123"})
	require.NoError(t, err)
	assert.Equal(t, joyTitle, p.Title)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestNoCredentialsSkipsSearchButTriesMobile(t *testing.T) {
	mobile := &fakeMobile{}
	created := 0
	c := newTestCrawler(
		WithFetcher(&fakeFetcher{}),
		WithMobile(mobile),
		WithSearchFactory(searchFactory(&fakeSearcher{}, &created)),
	)

	_, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: smartStoreURL})
	var notFound *ProductNotFoundError
	require.True(t, errors.As(err, &notFound))

	assert.Equal(t, 1, mobile.calls)
	assert.Equal(t, 0, created, "no search client without credentials")
	last := notFound.Attempts[len(notFound.Attempts)-1]
	assert.Equal(t, "search", last.Stage)
	assert.Equal(t, Skipped, last.Verdict)
	assert.Equal(t, "browser", notFound.Attempts[1].Stage)
	assert.Equal(t, Skipped, notFound.Attempts[1].Verdict)
}

func TestMobileRecordCompletesBrowserPartial(t *testing.T) {
	browser := &fakeBrowser{snap: &renderer.Snapshot{Title: joyTitle, Images: naverImages(1)}}
	record := types.NewExtractedProduct("", "")
	record.Title = "에버조이 건식 좌훈 족욕기 JOY-010 모바일"
	record.Price = "39,000원"
	record.MallName = "에버조이 공식몰"
	record.Images = naverImages(3)
	mobile := &fakeMobile{product: record}

	c := newTestCrawler(WithFetcher(&fakeFetcher{}), WithBrowser(browser), WithMobile(mobile))
	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: smartStoreURL})
	require.NoError(t, err)

	assert.Equal(t, joyTitle, p.Title, "the browser title outranks the mobile record")
	assert.Equal(t, types.SourceStealthDOM, p.SourceConfidence)
	assert.Equal(t, "에버조이 공식몰", p.MallName)
	assert.Equal(t, types.SourceMobileAPI, p.FieldSources[FieldMallName])
	assert.Len(t, p.Images, 3)
}

func TestSearchFallbackByKeyword(t *testing.T) {
	searcher := &fakeSearcher{item: &searchapi.Item{
		Title:    "에버조이 건식 좌훈 족욕기 JOY-010",
		Link:     "https://smartstore.naver.com/main/products/999",
		LowPrice: "38000",
		MallName: "에버조이",
		Image:    "https://shopping-phinf.pstatic.net/item/joy.jpg",
	}}
	created := 0
	c := newTestCrawler(WithFetcher(&fakeFetcher{}), WithSearchFactory(searchFactory(searcher, &created)))

	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{
		URL:         "https://www.gmarket.co.kr/n/search?keyword=족욕기+JOY-010",
		Credentials: searchCreds,
	})
	require.NoError(t, err)
	assert.Equal(t, "에버조이 건식 좌훈 족욕기 JOY-010", p.Title)
	assert.Equal(t, types.SourceSearchAPI, p.SourceConfidence)
	assert.Equal(t, "38,000원", p.Price)
	assert.Equal(t, []string{"족욕기 JOY-010"}, searcher.shopQuery)
	assert.Equal(t, 1, created)
}

func TestSearchByStoreNameRequiresProductMatch(t *testing.T) {
	searcher := &fakeSearcher{item: &searchapi.Item{
		Title: "다른 상품 무선 청소기 X9",
		Link:  "https://smartstore.naver.com/examplestore/products/777",
	}}
	created := 0
	c := newTestCrawler(WithFetcher(&fakeFetcher{}), WithSearchFactory(searchFactory(searcher, &created)))

	_, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: smartStoreURL, Credentials: searchCreds})
	var notFound *ProductNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Contains(t, notFound.Attempts[len(notFound.Attempts)-1].Reason, "123456")
}

func TestImageTopUp(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{genericURL: productPage}}
	searcher := &fakeSearcher{images: []string{
		"https://cdn.example.com/goods/joy010_main.jpg",
		"https://img.example.com/a.jpg",
		"https://img.example.com/b.jpg",
	}}
	created := 0
	c := newTestCrawler(WithFetcher(fetcher), WithSearchFactory(searchFactory(searcher, &created)))

	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: genericURL, Credentials: searchCreds})
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.imageCalls)
	assert.Len(t, p.Images, 4, "the duplicate search image is dropped")
	assert.Equal(t, types.SourceJSONLD, p.SourceConfidence, "top-up never changes the title source")
}

func TestQuotaExhaustedSkipsSearch(t *testing.T) {
	searcher := &fakeSearcher{exhausted: true}
	created := 0
	c := newTestCrawler(WithFetcher(&fakeFetcher{}), WithSearchFactory(searchFactory(searcher, &created)))

	_, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: genericURL + "?q=족욕기", Credentials: searchCreds})
	var notFound *ProductNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Empty(t, searcher.shopQuery)
}

func TestStagePanicEscalates(t *testing.T) {
	record := types.NewExtractedProduct("", "")
	record.Title = joyTitle
	c := newTestCrawler(
		WithFetcher(&fakeFetcher{}),
		WithBrowser(&fakeBrowser{panic: true}),
		WithMobile(&fakeMobile{product: record}),
	)

	before := PanicCount()
	p, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: smartStoreURL})
	require.NoError(t, err)
	assert.Equal(t, joyTitle, p.Title)
	assert.Equal(t, types.SourceMobileAPI, p.SourceConfidence)
	assert.Equal(t, before+1, PanicCount())
}

func TestCancelledContextAborts(t *testing.T) {
	c := newTestCrawler(WithFetcher(&fakeFetcher{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CrawlProduct(ctx, types.CrawlTarget{URL: genericURL})
	var abortErr *CrawlAbortedError
	require.True(t, errors.As(err, &abortErr))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "aborted", ErrorKind(err))
}

func TestCancelDuringStageAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &fakeFetcher{hook: func(string) { cancel() }}
	mobile := &fakeMobile{}
	c := newTestCrawler(WithFetcher(fetcher), WithMobile(mobile))

	_, err := c.CrawlProduct(ctx, types.CrawlTarget{URL: smartStoreURL})
	var abortErr *CrawlAbortedError
	require.True(t, errors.As(err, &abortErr))
	assert.Equal(t, "cheap", abortErr.Stage)
	assert.Equal(t, 0, mobile.calls)
}

func TestCrawlTimeoutAborts(t *testing.T) {
	fetcher := &fakeFetcher{hook: func(string) { time.Sleep(50 * time.Millisecond) }}
	c := New(Config{Timeout: 10 * time.Millisecond},
		WithResolver(passResolver{}), WithPersonas(nil), WithMobile(nil),
		WithSearchFactory(nil), WithFetcher(fetcher))

	_, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: genericURL})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestInvalidURL(t *testing.T) {
	c := newTestCrawler(WithFetcher(&fakeFetcher{}))
	for _, raw := range []string{"", "   ", "ftp://example.com/a", "not a url", "https://"} {
		_, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: raw})
		var invalid *InvalidURLError
		assert.True(t, errors.As(err, &invalid), "url %q", raw)
	}
}

func TestCacheHitSkipsPipeline(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{genericURL: productPage}}
	c := newTestCrawler(WithFetcher(fetcher), WithCache(cache.NewMemory(time.Minute)))

	first, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: genericURL})
	require.NoError(t, err)

	second, cached, err := c.crawl(context.Background(), types.CrawlTarget{URL: genericURL + "?utm_source=blog#reviews"})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, 1, fetcher.callCount())
}

func TestFailuresAreNotCached(t *testing.T) {
	fetcher := &fakeFetcher{}
	c := newTestCrawler(WithFetcher(fetcher), WithCache(cache.NewMemory(time.Minute)))

	for i := 0; i < 2; i++ {
		_, err := c.CrawlProduct(context.Background(), types.CrawlTarget{URL: genericURL})
		require.Error(t, err)
	}
	assert.Equal(t, 2, fetcher.callCount())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "not_found", ErrorKind(&ProductNotFoundError{}))
	assert.Equal(t, "invalid_url", ErrorKind(&InvalidURLError{}))
	assert.Equal(t, "content_too_short", ErrorKind(&ContentTooShortError{}))
	assert.Equal(t, "aborted", ErrorKind(context.DeadlineExceeded))
	assert.Equal(t, "error", ErrorKind(errors.New("boom")))
}

func TestStages(t *testing.T) {
	c := newTestCrawler()
	assert.Equal(t, []string{"cheap", "browser", "mobile", "search", "image_top_up"}, c.Stages())
}

func TestNotFoundMessageListsStages(t *testing.T) {
	err := &ProductNotFoundError{
		URL:      genericURL,
		Identity: types.ResolvedIdentity{StoreType: types.StoreGeneric},
		Attempts: []Attempt{{Stage: "cheap", Verdict: Escalate}, {Stage: "search", Verdict: Skipped}},
	}
	assert.True(t, strings.Contains(err.Error(), "cheap=escalate, search=skipped"))
}
