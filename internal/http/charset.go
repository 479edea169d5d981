package http

import (
	"mime"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
)

const charsetSniffBytes = 2000

var metaCharsetPattern = regexp.MustCompile(`(?i)<meta[^>]*charset=["']?([^"'\s>/;]+)`)

// NormalizeCharset maps common aliases onto a canonical label
func NormalizeCharset(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	switch l {
	case "", "utf8", "utf-8":
		return "utf-8"
	case "euckr", "euc-kr", "ks_c_5601-1987", "korean", "ksc5601", "x-euc-kr":
		return "euc-kr"
	case "ms949", "windows-949", "cp949", "x-windows-949", "uhc":
		return "cp949"
	}
	return l
}

// DeclaredCharset returns the charset declared by the document, preferring
// the HTML meta tag over the Content-Type header
func DeclaredCharset(raw []byte, contentType string) string {
	head := raw
	if len(head) > charsetSniffBytes {
		head = head[:charsetSniffBytes]
	}
	if m := metaCharsetPattern.FindSubmatch(head); m != nil {
		return NormalizeCharset(string(m[1]))
	}

	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if cs, ok := params["charset"]; ok {
				return NormalizeCharset(cs)
			}
		}
	}
	return "utf-8"
}

// Decode converts a response body to a string. It never fails; undecodable
// input comes back as best-effort UTF-8.
func Decode(raw []byte, contentType, rawURL string) string {
	if IsNaverURL(rawURL) {
		return strings.ToValidUTF8(string(raw), "\uFFFD")
	}

	declared := DeclaredCharset(raw, contentType)
	if declared != "utf-8" {
		if text, ok := decodeWith(raw, declared); ok {
			return text
		}
	}

	text := strings.ToValidUTF8(string(raw), "\uFFFD")
	if !needsKoreanRetry(text) {
		return text
	}

	// korean.EUCKR is the CP949 superset, so one pass covers both encodings
	if retry, ok := decodeWith(raw, "euc-kr"); ok && ContainsHangul(retry) && !strings.ContainsRune(retry, utf8.RuneError) {
		return retry
	}
	return text
}

func needsKoreanRetry(text string) bool {
	return strings.ContainsRune(text, utf8.RuneError) || !ContainsHangul(text)
}

func decodeWith(raw []byte, label string) (string, bool) {
	var enc encoding.Encoding
	switch label {
	case "euc-kr", "cp949":
		enc = korean.EUCKR
	default:
		e, _ := charset.Lookup(label)
		if e == nil {
			return "", false
		}
		enc = e
	}

	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// ContainsHangul reports whether s contains a precomposed hangul syllable
func ContainsHangul(s string) bool {
	for _, r := range s {
		if r >= 0xAC00 && r <= 0xD7A3 {
			return true
		}
	}
	return false
}

// IsNaverURL reports whether rawURL belongs to naver.com
func IsNaverURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
	if err != nil {
		return false
	}
	return domain == "naver.com" || domain == "naver.me"
}
