// Package validate decides whether extracted text is a real product title
// and whether a page is an error, block or CAPTCHA page.
package validate

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Reason explains why a title candidate was rejected
type Reason string

const (
	OK            Reason = ""
	TooShort      Reason = "too_short"
	StoreNameOnly Reason = "store_name_only"
	Slogan        Reason = "slogan"
	ImageFilename Reason = "image_filename"
	TooGeneric    Reason = "too_generic"
	ErrorText     Reason = "error_text"
)

// TitleRules holds the keyword tables for title validation
type TitleRules struct {
	Version  string
	MinRunes int

	// InvalidKeywords reject a candidate that contains any of them
	InvalidKeywords []string
	StoreName       *regexp.Regexp
	Slogan          *regexp.Regexp
	ProductNoun     *regexp.Regexp
	Features        *regexp.Regexp
	ImageFile       []*regexp.Regexp
	Generic         *regexp.Regexp
	ErrorWords      []string
}

// DefaultTitleRules returns the built-in title heuristics
func DefaultTitleRules() *TitleRules {
	return &TitleRules{
		Version:         "2026.02",
		MinRunes:        5,
		InvalidKeywords: []string{"공식스토어", "네이버 브랜드 커넥트", "NAVER", "브랜드스토어", "스마트스토어"},
		StoreName:       regexp.MustCompile(`(?i)^(브랜드스토어|스마트스토어|smartstore|brand\.naver)$|:\s*(브랜드|스토어)$`),
		Slogan:          regexp.MustCompile(`(?i)함께|더\s*나은|더\s*편리한|특별한|새로운|최고의|완벽한|일상|가치|행복|라이프|그리는`),
		ProductNoun:     regexp.MustCompile(`(?i)청소기|무선|로봇|에어컨|냉장고|세탁기|드라이기|건조기|PRO|MAX|PLUS|Ultra`),
		Features:        regexp.MustCompile(`[A-Z]{2,}|[0-9]+[가-힣]|(?i:PRO|MAX|PLUS|Ultra)|무선|자동|매직|청소기|냉장고|세탁기`),
		ImageFile: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|svg|bmp|ico)$`),
			regexp.MustCompile(`(?i)^[a-zA-Z0-9_-]{8,}(_\d+)?\.(jpg|jpeg|png|gif|webp)$`),
		},
		Generic: regexp.MustCompile(`(?i)^(상품|제품|아이템|item|product)$`),
		ErrorWords: []string{
			"에러", "오류", "접근", "차단", "점검", "삭제", "존재하지", "찾을 수 없",
			"서비스 접속", "security", "verification", "error", "denied", "blocked",
			"captcha", "maintenance", "not found",
		},
	}
}

// CheckTitle returns OK when candidate looks like a product title, otherwise
// the first rule it failed
func (r *TitleRules) CheckTitle(candidate string) Reason {
	t := strings.TrimSpace(candidate)
	if utf8.RuneCountInString(t) < r.MinRunes {
		return TooShort
	}
	for _, re := range r.ImageFile {
		if re.MatchString(t) {
			return ImageFilename
		}
	}
	if r.Generic.MatchString(t) {
		return TooGeneric
	}
	for _, kw := range r.InvalidKeywords {
		if strings.Contains(t, kw) {
			return StoreNameOnly
		}
	}
	if r.StoreName.MatchString(t) {
		return StoreNameOnly
	}
	if r.IsSlogan(t) {
		return Slogan
	}
	lower := strings.ToLower(t)
	for _, w := range r.ErrorWords {
		if strings.Contains(lower, w) {
			return ErrorText
		}
	}
	return OK
}

// IsSlogan reports marketing copy that carries no product-identifying token
func (r *TitleRules) IsSlogan(s string) bool {
	return r.Slogan.MatchString(s) && !r.ProductNoun.MatchString(s) && !r.HasProductFeatures(s)
}

// HasProductFeatures reports model numbers, specs or category nouns
func (r *TitleRules) HasProductFeatures(s string) bool {
	return r.Features.MatchString(s)
}

var defaultRules = DefaultTitleRules()

// Title reports whether candidate passes the default rules
func Title(candidate string) bool {
	return defaultRules.CheckTitle(candidate) == OK
}

// CheckTitle applies the default rules
func CheckTitle(candidate string) Reason {
	return defaultRules.CheckTitle(candidate)
}

var marketplaceSuffix = regexp.MustCompile(`(?i)\s*[-|:]\s*(네이버\s*)?(스마트스토어|브랜드스토어|쿠팡|NAVER|네이버|G마켓|옥션|11번가|Coupang)[^-|:]*$`)

// CleanTitle strips marketplace suffixes such as " : 네이버 스마트스토어"
// and collapses whitespace
func CleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for {
		next := marketplaceSuffix.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}
