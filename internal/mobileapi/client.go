// Package mobileapi calls the JSON endpoints behind the Smart Store mobile
// site. They answer with the full product record and are not behind the
// desktop bot wall, which makes them the best fallback after the browser.
package mobileapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BenjaminSRussell/shopscout/internal/config"
	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
	"github.com/BenjaminSRussell/shopscout/internal/images"
	"github.com/BenjaminSRussell/shopscout/internal/parser"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

const maxBodyBytes = 4 << 20

// Client fetches product records from the mobile API
type Client struct {
	httpClient   *http.Client
	baseURL      string
	brandBaseURL string
	retry        shttp.RetryConfig
}

// New creates a client from the mobile section of the configuration
func New(cfg config.MobileConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	retry := shttp.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.OnRetry = shttp.RetryLogger("mobileapi", "product")

	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(orDefault(cfg.BaseURL, "https://m.smartstore.naver.com"), "/"),
		brandBaseURL: strings.TrimRight(orDefault(cfg.BrandBaseURL, "https://m.brand.naver.com"), "/"),
		retry:        retry,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

type endpoint struct {
	url     string
	referer string
	origin  string
}

// endpoints lists the product URLs to try in order. The store-scoped paths
// answer for products the bare path sometimes refuses.
func (c *Client) endpoints(id, storeName string, st types.StoreType) []endpoint {
	id = url.PathEscape(id)
	eps := []endpoint{{
		url:     c.baseURL + "/i/v1/products/" + id,
		referer: c.baseURL + "/",
		origin:  c.baseURL,
	}}
	if storeName == "" {
		return eps
	}
	store := url.PathEscape(storeName)
	storeEP := endpoint{
		url:     c.baseURL + "/" + store + "/i/v1/products/" + id,
		referer: c.baseURL + "/" + store + "/",
		origin:  c.baseURL,
	}
	brandEP := endpoint{
		url:     c.brandBaseURL + "/" + store + "/i/v1/products/" + id,
		referer: c.brandBaseURL + "/" + store + "/",
		origin:  c.brandBaseURL,
	}
	if st == types.StoreBrandStore {
		return append(eps, brandEP, storeEP)
	}
	return append(eps, storeEP, brandEP)
}

// FetchByProductID returns the product for id, or nil when no endpoint
// produced a record with a name. Failures are logged, never returned.
func (c *Client) FetchByProductID(ctx context.Context, id, storeName string, st types.StoreType) *types.ExtractedProduct {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	log := zap.L().With(zap.String("product_id", id), zap.String("store", storeName))

	for _, ep := range c.endpoints(id, storeName, st) {
		rec, err := shttp.Retry(ctx, c.retry, func(ctx context.Context) (*productRecord, error) {
			return c.fetch(ctx, ep)
		})
		if ctx.Err() != nil {
			log.Debug("mobile api cancelled", zap.Error(ctx.Err()))
			return nil
		}
		if err != nil {
			log.Debug("mobile api endpoint failed", zap.String("endpoint", ep.url), zap.Error(err))
			continue
		}
		if strings.TrimSpace(rec.Name) == "" {
			log.Debug("mobile api record without name", zap.String("endpoint", ep.url))
			continue
		}
		p := rec.product()
		log.Info("mobile api hit",
			zap.String("endpoint", ep.url),
			zap.Int("images", len(p.Images)),
		)
		return p
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, ep endpoint) (*productRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.url, nil)
	if err != nil {
		return nil, shttp.Permanent(eris.Wrap(err, "mobileapi: build request"))
	}
	profile := shttp.IPhoneProfile()
	shttp.ApplyHeaders(req, profile)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Referer", ep.referer)
	req.Header.Set("Origin", ep.origin)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Dest", "empty")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, shttp.Permanent(err)
		}
		return nil, &shttp.TransientError{Err: eris.Wrap(err, "mobileapi: request")}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, shttp.ClassifyStatus("mobileapi", resp)
	}

	var rec productRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&rec); err != nil {
		return nil, shttp.Permanent(eris.Wrap(err, "mobileapi: decode"))
	}
	return &rec, nil
}

type productRecord struct {
	Name             string      `json:"name"`
	SalePrice        json.Number `json:"salePrice"`
	Brand            string      `json:"brand"`
	ManufacturerName string      `json:"manufacturerName"`
	ModelName        string      `json:"modelName"`
	Content          string      `json:"content"`
	Channel          struct {
		ChannelName string `json:"channelName"`
	} `json:"channel"`
	RepImage struct {
		URL string `json:"url"`
	} `json:"repImage"`
	OptionalImages []struct {
		URL string `json:"url"`
	} `json:"optionalImages"`
	NaverShoppingSearchInfo struct {
		BrandName        string `json:"brandName"`
		ManufacturerName string `json:"manufacturerName"`
		ModelName        string `json:"modelName"`
	} `json:"naverShoppingSearchInfo"`
}

func (r *productRecord) product() *types.ExtractedProduct {
	p := types.NewExtractedProduct("", "")
	p.Title = strings.TrimSpace(r.Name)
	p.Price = formatSalePrice(r.SalePrice)
	p.Brand = firstNonEmpty(r.Brand, r.NaverShoppingSearchInfo.BrandName, r.ManufacturerName, r.NaverShoppingSearchInfo.ManufacturerName)
	p.MallName = strings.TrimSpace(r.Channel.ChannelName)
	p.Description = contentText(r.Content)
	if model := firstNonEmpty(r.ModelName, r.NaverShoppingSearchInfo.ModelName); model != "" {
		p.Spec = "모델명: " + model
	}

	urls := make([]string, 0, 1+len(r.OptionalImages))
	if r.RepImage.URL != "" {
		urls = append(urls, r.RepImage.URL)
	}
	for _, img := range r.OptionalImages {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	p.Images = images.Dedup(urls)
	p.SourceConfidence = types.SourceMobileAPI
	return p
}

// formatSalePrice renders a numeric sale price as won; zero or missing
// prices yield ""
func formatSalePrice(n json.Number) string {
	return parser.FormatPrice(n.String(), "KRW")
}

// contentText turns the HTML product detail into bounded plain text
func contentText(content string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	text := strings.Join(strings.Fields(parser.BlockText(doc.Selection)), " ")
	if r := []rune(text); len(r) > types.MaxDescriptionRunes {
		text = string(r[:types.MaxDescriptionRunes])
	}
	return text
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
