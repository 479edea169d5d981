// Package identity classifies marketplace product URLs without network access.
package identity

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

var (
	productPathPattern = regexp.MustCompile(`/products/(\d+)(?:/([^/?#]+))?`)
	digitsPattern      = regexp.MustCompile(`^\d+$`)
)

// productIDParams are checked in order before any path parsing
var productIDParams = []string{"channelProductNo", "productNo", "productId", "goodscode", "itemno", "prdNo"}

// genericKeywordParams are the last resort for a search keyword
var genericKeywordParams = []string{"q", "query", "keyword", "search", "name", "productName", "item"}

// reservedStoreSegments are first path segments that are not store names
var reservedStoreSegments = map[string]bool{
	"i":        true,
	"products": true,
	"main":     true,
	"search":   true,
	"category": true,
	"best":     true,
	"login":    true,
	"window":   true,
	"bridge":   true,
	"inflow":   true,
	"channels": true,
	"profile":  true,
	"notice":   true,
	"catalog":  true,
}

// StoreTypeOf maps a hostname onto a store type
func StoreTypeOf(host string) types.StoreType {
	h := strings.ToLower(strings.TrimPrefix(host, "www."))
	switch {
	case hostIs(h, "smartstore.naver.com"), hostIs(h, "shopping.naver.com"):
		return types.StoreSmartStore
	case hostIs(h, "brand.naver.com"):
		return types.StoreBrandStore
	case hostIs(h, "coupang.com"), h == "coupa.ng":
		return types.StoreCoupang
	case hostIs(h, "gmarket.co.kr"):
		return types.StoreGmarket
	case hostIs(h, "auction.co.kr"):
		return types.StoreAuction
	case hostIs(h, "11st.co.kr"):
		return types.StoreEleven
	}
	return types.StoreGeneric
}

func hostIs(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Resolve extracts store type, store name, product ID and a search keyword
// from rawURL. It is pure: the same input always yields the same output.
func Resolve(rawURL string) types.ResolvedIdentity {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return types.ResolvedIdentity{StoreType: types.StoreGeneric}
	}

	id := types.ResolvedIdentity{StoreType: StoreTypeOf(u.Hostname())}
	query := u.Query()

	// 1. explicit product id parameters
	for _, p := range productIDParams {
		if v := strings.TrimSpace(query.Get(p)); digitsPattern.MatchString(v) {
			id.ProductID = v
			break
		}
	}

	// 2. product id in the path, with an optional product-name slug after it
	path := u.EscapedPath()
	if m := productPathPattern.FindStringSubmatch(path); m != nil {
		if id.ProductID == "" {
			id.ProductID = m[1]
		}
		if m[2] != "" && id.StoreType == types.StoreSmartStore {
			if slug, err := url.PathUnescape(m[2]); err == nil {
				id.Keyword = strings.TrimSpace(strings.ReplaceAll(slug, "-", " "))
			}
		}
	}

	// 3. store name segment
	if hasStorePath(u.Hostname()) {
		id.StoreName = storeSegment(u.Path)
	}

	// 4. per-marketplace keyword parameters
	if id.Keyword == "" {
		id.Keyword = marketplaceKeyword(id.StoreType, query)
	}

	// 5. generic keyword parameters
	if id.Keyword == "" {
		for _, p := range genericKeywordParams {
			if v := strings.TrimSpace(query.Get(p)); v != "" {
				id.Keyword = v
				break
			}
		}
	}

	if id.StoreType != types.StoreGeneric && id.StoreName == "" && id.ProductID == "" {
		id.StoreType = types.StoreGeneric
	}
	return id
}

// hasStorePath reports whether the first path segment names a store
func hasStorePath(host string) bool {
	h := strings.ToLower(host)
	return hostIs(h, "smartstore.naver.com") || hostIs(h, "brand.naver.com")
}

func storeSegment(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return ""
	}
	seg := segs[0]
	if reservedStoreSegments[strings.ToLower(seg)] || digitsPattern.MatchString(seg) {
		return ""
	}
	return seg
}

func marketplaceKeyword(st types.StoreType, query url.Values) string {
	var params []string
	switch st {
	case types.StoreSmartStore, types.StoreBrandStore:
		params = []string{"productName", "keyword"}
	case types.StoreCoupang:
		params = []string{"itemName"}
	case types.StoreGmarket, types.StoreAuction, types.StoreEleven:
		params = []string{"keyword", "kwd", "q"}
	}
	for _, p := range params {
		if v := strings.TrimSpace(query.Get(p)); v != "" {
			return v
		}
	}
	return ""
}

// IsAlwaysCSR reports whether a URL class renders everything client side,
// so a plain fetch can never see product content
func IsAlwaysCSR(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	switch {
	case hostIs(host, "brandconnect.naver.com"):
		return true
	case hostIs(host, "shopping.naver.com") && strings.Contains(u.Path, "/window-products/"):
		return true
	case hostIs(host, "m.place.naver.com"), hostIs(host, "place.naver.com"):
		return true
	}
	return false
}

// IsCSRHeavy reports whether pages of this class need the long browser timeout
func IsCSRHeavy(rawURL string, st types.StoreType) bool {
	return st == types.StoreBrandStore || IsAlwaysCSR(rawURL)
}

// MobileURL rewrites Smart Store and Brand Store desktop URLs onto their
// mobile hosts, which are more often server rendered
func MobileURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	switch strings.ToLower(u.Hostname()) {
	case "smartstore.naver.com":
		u.Host = "m.smartstore.naver.com"
	case "brand.naver.com":
		u.Host = "m.brand.naver.com"
	default:
		return rawURL
	}
	return u.String()
}

// IsMobileHost reports whether rawURL points at a mobile web host such as
// m.smartstore.naver.com
func IsMobileHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(u.Hostname()), "m.")
}
