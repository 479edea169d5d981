package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ProductLD is the subset of a schema.org Product node the crawler uses
type ProductLD struct {
	Name        string
	Description string
	Images      []string
	Price       string
	Currency    string
	Brand       string
	Rating      float64
	ReviewCount int
	SKU         string
}

// FormattedPrice renders the price with a currency suffix, e.g. "39,000원"
func (p *ProductLD) FormattedPrice() string {
	if p == nil || p.Price == "" {
		return ""
	}
	return FormatPrice(p.Price, p.Currency)
}

// ExtractJSONLD returns the first Product node found in any
// application/ld+json block, or nil. Malformed blocks are skipped.
func ExtractJSONLD(html string) *ProductLD {
	doc, err := Parse(html, "")
	if err != nil {
		return nil
	}
	return doc.JSONLD()
}

// JSONLD is ExtractJSONLD over an already parsed document
func (d *Document) JSONLD() *ProductLD {
	var found *ProductLD
	d.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var raw any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &raw); err != nil {
			return true
		}
		if node := findProduct(raw); node != nil {
			found = toProductLD(node)
			return found == nil
		}
		return true
	})
	return found
}

// findProduct looks at the top level, a top-level array, and one level into @graph
func findProduct(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		if isProduct(v) {
			return v
		}
		if graph, ok := v["@graph"].([]any); ok {
			for _, item := range graph {
				if m, ok := item.(map[string]any); ok && isProduct(m) {
					return m
				}
			}
		}
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if node := findProduct(m); node != nil {
					return node
				}
			}
		}
	}
	return nil
}

func isProduct(m map[string]any) bool {
	switch t := m["@type"].(type) {
	case string:
		return t == "Product"
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func toProductLD(m map[string]any) *ProductLD {
	p := &ProductLD{
		Name:        strings.TrimSpace(str(m["name"])),
		Description: strings.TrimSpace(str(m["description"])),
		Images:      imageList(m["image"]),
		SKU:         str(m["sku"]),
	}
	if p.Name == "" {
		return nil
	}

	switch b := m["brand"].(type) {
	case string:
		p.Brand = b
	case map[string]any:
		p.Brand = str(b["name"])
	}

	offer := m["offers"]
	if list, ok := offer.([]any); ok && len(list) > 0 {
		offer = list[0]
	}
	if o, ok := offer.(map[string]any); ok {
		p.Price = str(o["price"])
		if p.Price == "" {
			p.Price = str(o["lowPrice"])
		}
		p.Currency = str(o["priceCurrency"])
	}

	if r, ok := m["aggregateRating"].(map[string]any); ok {
		p.Rating, _ = strconv.ParseFloat(str(r["ratingValue"]), 64)
		n, _ := strconv.ParseFloat(str(r["reviewCount"]), 64)
		p.ReviewCount = int(n)
	}
	return p
}

func imageList(v any) []string {
	var out []string
	switch img := v.(type) {
	case string:
		if img != "" {
			out = append(out, img)
		}
	case map[string]any:
		if u := str(img["url"]); u != "" {
			out = append(out, u)
		}
	case []any:
		for _, x := range img {
			out = append(out, imageList(x)...)
		}
	}
	return out
}

// str renders JSON scalars as strings; numbers lose no precision for prices
func str(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case bool:
		return fmt.Sprint(x)
	}
	return ""
}
