package validate

import "strings"

// PageKind classifies a page by its body text
type PageKind int

const (
	PageOK PageKind = iota
	// PageBlocked is an access-denied, CAPTCHA or maintenance page; a reload may help
	PageBlocked
	// PageNotFound means the product is gone; reloading will not help
	PageNotFound
)

func (k PageKind) String() string {
	switch k {
	case PageBlocked:
		return "blocked"
	case PageNotFound:
		return "not_found"
	}
	return "ok"
}

var notFoundKeywords = []string{
	"상품이 존재하지 않습니다",
	"페이지를 찾을 수 없습니다",
	"삭제되었거나 변경",
	"존재하지 않는 상품",
	"접근할 수 없는 페이지",
	"판매 종료된 상품",
	"page not found",
}

var blockedKeywords = []string{
	"서비스 접속이 불가",
	"에러페이지",
	"보안 확인",
	"캡차",
	"captcha",
	"비정상적인 접근",
	"access denied",
	"접속이 일시적으로 제한",
	"too many requests",
	"robot check",
	"unusual traffic",
}

// DetectErrorPage inspects visible page text and returns its kind together
// with the keyword that matched
func DetectErrorPage(text string) (PageKind, string) {
	lower := strings.ToLower(text)
	for _, kw := range notFoundKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return PageNotFound, kw
		}
	}
	for _, kw := range blockedKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return PageBlocked, kw
		}
	}
	return PageOK, ""
}

// IsErrorPage reports whether text is any kind of error page
func IsErrorPage(text string) bool {
	kind, _ := DetectErrorPage(text)
	return kind != PageOK
}
