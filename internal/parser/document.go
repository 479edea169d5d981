// Package parser extracts product and article data from static HTML.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML page together with the URL it came from
type Document struct {
	*goquery.Document
	BaseURL string
}

// Parse parses htmlContent. Malformed markup is tolerated; an error is only
// returned when the reader itself fails.
func Parse(htmlContent, baseURL string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}
	return &Document{Document: doc, BaseURL: baseURL}, nil
}

// Meta returns the content of the first meta tag whose property or name
// equals key
func (d *Document) Meta(key string) string {
	var out string
	d.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		prop, _ := s.Attr("property")
		name, _ := s.Attr("name")
		if !strings.EqualFold(prop, key) && !strings.EqualFold(name, key) {
			return true
		}
		if content, ok := s.Attr("content"); ok && strings.TrimSpace(content) != "" {
			out = strings.TrimSpace(content)
			return false
		}
		return true
	})
	return out
}

// SelectorText returns the text of the first non-empty match of selector.
// Meta elements yield their content attribute.
func (d *Document) SelectorText(selector string) string {
	var out string
	d.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var text string
		if goquery.NodeName(s) == "meta" {
			text, _ = s.Attr("content")
		} else {
			text = s.Text()
		}
		text = strings.Join(strings.Fields(text), " ")
		if text != "" {
			out = text
			return false
		}
		return true
	})
	return out
}

// ImageSrc returns the best source attribute of an img element
func ImageSrc(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
		if v, ok := s.Attr(attr); ok {
			v = strings.TrimSpace(v)
			if v != "" && !strings.HasPrefix(v, "data:") {
				return v
			}
		}
	}
	return ""
}

// Resolve makes href absolute against the document URL
func (d *Document) Resolve(href string) string {
	return normalizeURL(href, d.BaseURL)
}

// normalizeURL converts relative URLs to absolute and cleans them
func normalizeURL(href, baseURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:") {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base, err := url.Parse(baseURL); err == nil && baseURL != "" {
		u = base.ResolveReference(u)
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		u.Scheme = "https"
	}
	u.Fragment = ""
	return u.String()
}

var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"msclkid":      true,
	"NaPm":         true,
	"nl-query":     true,
	"nt_source":    true,
	"nt_medium":    true,
	"nt_detail":    true,
	"nt_keyword":   true,
}

// CanonicalURL strips fragments and tracking parameters so equivalent
// product links share one cache key
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	for param := range trackingParams {
		q.Del(param)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
