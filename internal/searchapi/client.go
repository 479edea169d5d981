// Package searchapi wraps the official Naver search API (blog, news, web
// documents, shopping and image search). It is the last structured source a
// crawl falls back to, and the only one that costs quota.
package searchapi

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BenjaminSRussell/shopscout/internal/config"
	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// Kind selects a search vertical
type Kind string

const (
	KindBlog  Kind = "blog"
	KindNews  Kind = "news"
	KindWeb   Kind = "webkr"
	KindShop  Kind = "shop"
	KindImage Kind = "image"
)

// ParseKind accepts the vertical names used on the command line
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blog":
		return KindBlog, nil
	case "news":
		return KindNews, nil
	case "web", "webkr":
		return KindWeb, nil
	case "shop", "shopping":
		return KindShop, nil
	case "image", "images":
		return KindImage, nil
	}
	return "", eris.Errorf("searchapi: unknown kind %q", s)
}

var (
	// ErrNoCredentials is returned by New without a client id and secret
	ErrNoCredentials = eris.New("searchapi: credentials not configured")
	// ErrQuotaExceeded is returned once the API answered 429. The client
	// refuses every later call.
	ErrQuotaExceeded = eris.New("searchapi: quota exceeded")
)

// Item is one search hit. Which fields are set depends on the kind.
type Item struct {
	Title        string `json:"title"`
	Link         string `json:"link"`
	Description  string `json:"description,omitempty"`
	OriginalLink string `json:"original_link,omitempty"`
	Date         string `json:"date,omitempty"`

	// shop
	Image     string `json:"image,omitempty"`
	LowPrice  string `json:"low_price,omitempty"`
	MallName  string `json:"mall_name,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Brand     string `json:"brand,omitempty"`
	Maker     string `json:"maker,omitempty"`
	Category  string `json:"category,omitempty"`

	// image
	Thumbnail string `json:"thumbnail,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

type rawItem struct {
	Title        string `json:"title"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	OriginalLink string `json:"originallink"`
	PostDate     string `json:"postdate"`
	PubDate      string `json:"pubDate"`
	Image        string `json:"image"`
	LPrice       string `json:"lprice"`
	MallName     string `json:"mallName"`
	ProductID    string `json:"productId"`
	Brand        string `json:"brand"`
	Maker        string `json:"maker"`
	Category1    string `json:"category1"`
	Category2    string `json:"category2"`
	Thumbnail    string `json:"thumbnail"`
	SizeWidth    string `json:"sizewidth"`
	SizeHeight   string `json:"sizeheight"`
}

type response struct {
	Total int       `json:"total"`
	Items []rawItem `json:"items"`
}

// Client calls the search API. Create one per crawl so that a quota wall
// hit during one crawl does not leak into the next.
type Client struct {
	httpClient *http.Client
	baseURL    string
	id, secret string
	display    int
	limiter    *rate.Limiter
	retry      shttp.RetryConfig

	exhausted atomic.Bool
	calls     atomic.Int64
}

// New creates a client. It returns ErrNoCredentials when the credentials
// cannot call the API.
func New(cfg config.SearchConfig, creds types.Credentials) (*Client, error) {
	if !creds.HasSearch() {
		return nil, ErrNoCredentials
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}
	display := cfg.Display
	if display <= 0 {
		display = 10
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://openapi.naver.com/v1/search"
	}

	retry := shttp.DefaultRetryConfig()
	retry.MaxAttempts = 2
	retry.OnRetry = shttp.RetryLogger("searchapi", "search")

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(base, "/"),
		id:         strings.TrimSpace(creds.SearchClientID),
		secret:     strings.TrimSpace(creds.SearchClientSecret),
		display:    display,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		retry:      retry,
	}, nil
}

// Exhausted reports whether the quota wall has been hit
func (c *Client) Exhausted() bool {
	return c.exhausted.Load()
}

// Calls returns the number of requests sent so far
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// Search queries one vertical. display is clamped to 1..100; 0 uses the
// configured default.
func (c *Client) Search(ctx context.Context, query string, kind Kind, display int) ([]Item, error) {
	return c.search(ctx, query, kind, display, nil)
}

func (c *Client) search(ctx context.Context, query string, kind Kind, display int, extra url.Values) ([]Item, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("searchapi: empty query")
	}
	if c.exhausted.Load() {
		return nil, ErrQuotaExceeded
	}
	if display <= 0 {
		display = c.display
	}
	display = min(max(display, 1), 100)

	params := url.Values{}
	params.Set("query", query)
	params.Set("display", strconv.Itoa(display))
	params.Set("start", "1")
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	endpoint := c.baseURL + "/" + string(kind) + ".json?" + params.Encode()

	resp, err := shttp.Retry(ctx, c.retry, func(ctx context.Context) (*response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, shttp.Permanent(err)
		}
		return c.do(ctx, endpoint)
	})
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return nil, ErrQuotaExceeded
		}
		return nil, eris.Wrapf(err, "searchapi: %s search", kind)
	}

	items := make([]Item, 0, len(resp.Items))
	for _, r := range resp.Items {
		items = append(items, r.item())
	}
	zap.L().Debug("search api results",
		zap.String("kind", string(kind)),
		zap.String("query", query),
		zap.Int("items", len(items)),
		zap.Int("total", resp.Total),
	)
	return items, nil
}

func (c *Client) do(ctx context.Context, endpoint string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, shttp.Permanent(eris.Wrap(err, "searchapi: build request"))
	}
	req.Header.Set("X-Naver-Client-Id", c.id)
	req.Header.Set("X-Naver-Client-Secret", c.secret)
	req.Header.Set("Accept", "application/json")

	c.calls.Add(1)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, shttp.Permanent(err)
		}
		return nil, &shttp.TransientError{Err: eris.Wrap(err, "searchapi: request")}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.exhausted.Store(true)
		zap.L().Warn("search api quota exceeded, disabling further calls")
		return nil, shttp.Permanent(ErrQuotaExceeded)
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, shttp.ClassifyStatus("searchapi", resp)
	}

	var out response
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return nil, shttp.Permanent(eris.Wrap(err, "searchapi: decode"))
	}
	return &out, nil
}

func (r rawItem) item() Item {
	date := r.PostDate
	if date == "" {
		date = r.PubDate
	}
	category := strings.Trim(r.Category1+">"+r.Category2, ">")
	w, _ := strconv.Atoi(strings.TrimSpace(r.SizeWidth))
	h, _ := strconv.Atoi(strings.TrimSpace(r.SizeHeight))
	return Item{
		Title:        StripTags(r.Title),
		Link:         r.Link,
		Description:  StripTags(r.Description),
		OriginalLink: r.OriginalLink,
		Date:         date,
		Image:        r.Image,
		LowPrice:     r.LPrice,
		MallName:     StripTags(r.MallName),
		ProductID:    r.ProductID,
		Brand:        StripTags(r.Brand),
		Maker:        StripTags(r.Maker),
		Category:     category,
		Thumbnail:    r.Thumbnail,
		Width:        w,
		Height:       h,
	}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags removes the <b> highlight markup the API wraps around matches
// and decodes entities
func StripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(s, "")))
}
