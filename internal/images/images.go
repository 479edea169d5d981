// Package images filters, upgrades and deduplicates product image URLs.
package images

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BenjaminSRussell/shopscout/internal/selectors"
)

// Kind is where on the page an image was found
type Kind string

const (
	KindRepresentative Kind = "representative"
	KindGallery        Kind = "gallery"
	KindReview         Kind = "review"
	KindProductArea    Kind = "product_area"
	KindDetail         Kind = "detail"
	KindSearch         Kind = "search"
)

// Candidate is an image seen on a page, with whatever size and context
// information the page exposed
type Candidate struct {
	URL    string
	Kind   Kind
	Width  int
	Height int
	Alt    string

	// Excluded is set when the image sits inside a header, navigation,
	// banner or detail-description container
	Excluded bool
}

// blockedSubstrings never appear in product photo URLs
var blockedSubstrings = []string{
	"video-phinf", "dthumb", "vod-", "searchad-phinf",
	"/banner/", "/logo/", "/icon/", "/badge/", "/event/", "/promotion/", "/campaign/", "/coupon/",
	"storelogo", "brandlogo", "npay", "btn_", "placeholder", "loading", "spinner", "sprite",
	"detail-content", "editor-upload", "se-content",
	".svg", ".gif", "data:image", "_thumb", "1x1",
}

var (
	tinyTypePattern  = regexp.MustCompile(`type=f(40|60|80|100)(_|$|&)`)
	tinySizePattern  = regexp.MustCompile(`(?:^|[^0-9])(50|60|70|80|90|100|110|120)x(50|60|70|80|90|100|110|120)(?:[^0-9]|$)`)
	typeParamPattern = regexp.MustCompile(`type=f\d+(_\d+)?(_q\d+)?`)
	typeQueryPattern = regexp.MustCompile(`\?type=.*$`)
	sizeDirPattern   = regexp.MustCompile(`/s_\d+/`)
	sizeSuffix       = regexp.MustCompile(`_\d+x\d+\.`)
	typeWidthPattern = regexp.MustCompile(`type=[a-z]?(\d+)`)
	widthParam       = regexp.MustCompile(`[?&](?:w|width)=(\d+)`)
	suffixWidth      = regexp.MustCompile(`_(\d+)x\d+\.`)
)

var marketingAlt = []string{"무상", "a/s", "warranty", "배송", "안심", "공식", "인증", "official", "made in", "germany"}

// naverCDNHosts serve product photos for Naver stores
var naverCDNHosts = []string{"shop-phinf", "shopping-phinf", "checkout.phinf", "image.nmv", "pstatic.net"}

// Filter decides whether candidates are product photos
type Filter struct {
	th selectors.Thresholds

	// RequireCDN keeps only Naver image CDN URLs
	RequireCDN bool
}

// NewFilter creates a filter
func NewFilter(th selectors.Thresholds, requireCDN bool) *Filter {
	return &Filter{th: th, RequireCDN: requireCDN}
}

// Accept reports whether c looks like a product photo
func (f *Filter) Accept(c Candidate) bool {
	src := strings.TrimSpace(c.URL)
	if len(src) < 20 || c.Excluded {
		return false
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") && !strings.HasPrefix(src, "//") {
		return false
	}
	if IsBlocked(src) {
		return false
	}

	if c.Width > 0 && c.Height > 0 {
		if c.Width < f.th.MinImageSide || c.Height < f.th.MinImageSide {
			return false
		}
		ratio := float64(c.Width) / float64(c.Height)
		if ratio > f.th.MaxAspectRatio || ratio < f.th.MinAspectRatio {
			return false
		}
	}

	alt := strings.ToLower(c.Alt)
	for _, kw := range marketingAlt {
		if strings.Contains(alt, kw) {
			return false
		}
	}

	if f.RequireCDN && !IsNaverCDN(src) {
		return false
	}
	return true
}

// IsBlocked reports URL patterns of logos, banners, ads, icons and thumbnails
func IsBlocked(src string) bool {
	lower := strings.ToLower(src)
	for _, p := range blockedSubstrings {
		if strings.Contains(lower, p) {
			return true
		}
	}
	// catalogue thumbnails of other products
	if strings.Contains(lower, "shopping-phinf") && strings.Contains(lower, "/main_") {
		return true
	}
	return tinyTypePattern.MatchString(lower) || tinySizePattern.MatchString(lower)
}

// IsNaverCDN reports whether src is served by Naver's image CDN
func IsNaverCDN(src string) bool {
	for _, h := range naverCDNHosts {
		if strings.Contains(src, h) {
			return true
		}
	}
	return false
}

// HighRes rewrites a thumbnail URL to its large variant. checkout.phinf and
// image.nmv ignore type parameters and 404 on them, so those only lose the
// query string.
func HighRes(src string) string {
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	if strings.Contains(src, "checkout.phinf") || strings.Contains(src, "image.nmv") {
		return typeQueryPattern.ReplaceAllString(src, "")
	}
	if !IsNaverCDN(src) {
		return src
	}
	src = typeParamPattern.ReplaceAllString(src, "type=f640_640")
	src = typeQueryPattern.ReplaceAllString(src, "?type=f640_640")
	src = sizeDirPattern.ReplaceAllString(src, "/o/")
	src = sizeSuffix.ReplaceAllString(src, ".")
	return src
}

// BaseURL is the dedup key: scheme-less, query-less and without size markers
func BaseURL(src string) string {
	s := src
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "https:")
	s = strings.TrimPrefix(s, "http:")
	s = sizeDirPattern.ReplaceAllString(s, "/o/")
	s = sizeSuffix.ReplaceAllString(s, ".")
	return strings.ToLower(s)
}

// Resolution estimates the pixel width encoded in a URL. URLs without any
// size marker are treated as originals and rank highest.
func Resolution(src string) int {
	if m := typeWidthPattern.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := widthParam.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := suffixWidth.FindStringSubmatch(src); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if sizeDirPattern.MatchString(src) {
		return 0
	}
	return 1 << 20
}

// Dedup collapses URLs sharing a base URL into one entry, keeping the
// position of the first occurrence and the highest-resolution variant
func Dedup(urls []string) []string {
	out := make([]string, 0, len(urls))
	index := make(map[string]int, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		key := BaseURL(u)
		if i, ok := index[key]; ok {
			if Resolution(u) > Resolution(out[i]) {
				out[i] = u
			}
			continue
		}
		index[key] = len(out)
		out = append(out, u)
	}
	return out
}

// Clean filters, upgrades and deduplicates candidates in order, returning at
// most limit URLs (0 means no limit)
func (f *Filter) Clean(cands []Candidate, limit int) []string {
	urls := make([]string, 0, len(cands))
	for _, c := range cands {
		if !f.Accept(c) {
			continue
		}
		urls = append(urls, HighRes(c.URL))
	}
	urls = Dedup(urls)
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	return urls
}
