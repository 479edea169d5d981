package searchapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/shopscout/internal/config"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

var testCreds = types.Credentials{SearchClientID: "client-id", SearchClientSecret: "client-secret"}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(config.SearchConfig{BaseURL: baseURL, RPS: 1000, TimeoutSecs: 5, Display: 10}, testCreds)
	require.NoError(t, err)
	c.retry.InitialBackoff = time.Millisecond
	c.retry.MaxBackoff = 5 * time.Millisecond
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(config.SearchConfig{}, types.Credentials{SearchClientID: "only-id"})
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestSearchShopSendsCredentialsAndPicksMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shop.json", r.URL.Path)
		assert.Equal(t, "client-id", r.Header.Get("X-Naver-Client-Id"))
		assert.Equal(t, "client-secret", r.Header.Get("X-Naver-Client-Secret"))
		assert.Equal(t, "좌훈 족욕기", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("display"))
		fmt.Fprint(w, `{"total": 2, "items": [
			{"title": "다른 <b>족욕기</b>", "link": "https://search.shopping.naver.com/catalog/1", "lprice": "10000", "mallName": "네이버"},
			{"title": "[에버조이] 건식 <b>좌훈</b> 족욕기 (JOY-010)", "link": "https://smartstore.naver.com/main/products/123456",
			 "image": "https://shopping-phinf.pstatic.net/main_1/123.jpg", "lprice": "39000", "mallName": "에버조이",
			 "brand": "", "maker": "에버조이", "category1": "생활/건강", "category2": "안마용품"}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	item, err := c.SearchShop(context.Background(), "좌훈 족욕기", types.ResolvedIdentity{ProductID: "123456"})
	require.NoError(t, err)
	require.NotNil(t, item)

	p := item.Product()
	assert.Equal(t, "[에버조이] 건식 좌훈 족욕기 (JOY-010)", p.Title)
	assert.Equal(t, "39,000원", p.Price)
	assert.Equal(t, "에버조이", p.Brand)
	assert.Equal(t, "에버조이", p.MallName)
	assert.Equal(t, "카테고리: 생활/건강>안마용품", p.Spec)
	assert.Equal(t, []string{"https://shopping-phinf.pstatic.net/main_1/123.jpg"}, p.Images)
	assert.Equal(t, types.SourceSearchAPI, p.SourceConfidence)
	assert.Equal(t, int64(1), c.Calls())
}

func TestPickShopMatch(t *testing.T) {
	items := []Item{
		{Title: "first", Link: "https://a.example/1", MallName: "다른몰"},
		{Title: "by store", Link: "https://a.example/2", MallName: "ExampleStore"},
		{Title: "by id", Link: "https://smartstore.naver.com/x/products/777"},
	}

	assert.Equal(t, "by id", PickShopMatch(items, types.ResolvedIdentity{ProductID: "777", StoreName: "examplestore"}).Title)
	assert.Equal(t, "by store", PickShopMatch(items, types.ResolvedIdentity{ProductID: "999", StoreName: "examplestore"}).Title)
	assert.Equal(t, "first", PickShopMatch(items, types.ResolvedIdentity{}).Title)
	assert.Nil(t, PickShopMatch(nil, types.ResolvedIdentity{}))
}

func TestQuotaExceededDisablesClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), "족욕기", KindShop, 5)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.True(t, c.Exhausted())

	_, err = c.SearchImages(context.Background(), "족욕기", 5)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSearchImagesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/image.json", r.URL.Path)
		assert.Equal(t, "large", r.URL.Query().Get("filter"))
		fmt.Fprint(w, `{"items": [
			{"link": "https://img.example.com/a.jpg", "sizewidth": "800", "sizeheight": "600"},
			{"link": "https://img.example.com/small.jpg", "sizewidth": "120", "sizeheight": "600"},
			{"link": "https://img.example.com/flat.jpg", "sizewidth": "800", "sizeheight": "100"},
			{"link": "https://img.example.com/noimage.png", "sizewidth": "800", "sizeheight": "600"},
			{"link": "https://img.example.com/a.jpg", "sizewidth": "800", "sizeheight": "600"},
			{"link": "https://img.example.com/b.jpg?from=default", "sizewidth": "", "sizeheight": ""}
		]}`)
	}))
	defer srv.Close()

	got, err := newTestClient(t, srv.URL).SearchImages(context.Background(), "족욕기", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img.example.com/a.jpg", "https://img.example.com/b.jpg?from=default"}, got)
}

func TestSearchContentFansOut(t *testing.T) {
	var seen pathLog
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.URL.Path)
		switch r.URL.Path {
		case "/blog.json":
			fmt.Fprint(w, `{"items": [{"title": "후기", "link": "https://blog.naver.com/a/1",
				"description": "건식 좌훈기를 한 달 동안 써 본 솔직한 사용 후기입니다 &amp; 장단점 정리"}]}`)
		case "/news.json":
			w.WriteHeader(http.StatusInternalServerError)
		case "/webkr.json":
			fmt.Fprint(w, `{"items": [{"title": "짧은", "link": "https://example.com", "description": "짧다"}]}`)
		}
	}))
	defer srv.Close()

	content, err := newTestClient(t, srv.URL).SearchContent(context.Background(), "좌훈기")
	require.NoError(t, err)
	assert.Len(t, content.Blogs, 1)
	assert.Empty(t, content.News)
	assert.Len(t, content.Web, 1)
	assert.Equal(t, 2, content.Total())
	require.Len(t, content.Snippets, 1)
	assert.Contains(t, content.Snippets[0], "& 장단점")
	assert.ElementsMatch(t, []string{"/blog.json", "/news.json", "/webkr.json"}, seen.unique())
}

func TestSearchContentAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).SearchContent(context.Background(), "좌훈기")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrQuotaExceeded))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "건식 좌훈 & 족욕기", StripTags("건식 <b>좌훈</b> &amp; 족욕기 "))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("web")
	require.NoError(t, err)
	assert.Equal(t, KindWeb, k)
	_, err = ParseKind("video")
	assert.Error(t, err)
}

// pathLog collects request paths from concurrent handlers
type pathLog struct {
	mu    sync.Mutex
	paths []string
}

func (l *pathLog) add(p string) {
	l.mu.Lock()
	l.paths = append(l.paths, p)
	l.mu.Unlock()
}

func (l *pathLog) unique() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := map[string]bool{}
	var out []string
	for _, p := range l.paths {
		if !set[p] {
			set[p] = true
			out = append(out, p)
		}
	}
	return out
}
