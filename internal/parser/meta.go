package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MetaResult is what OpenGraph / Twitter / <title> tags say about a page
type MetaResult struct {
	Title       string
	Images      []string
	Price       string
	Description string
	SiteName    string
}

var priceDigits = regexp.MustCompile(`[0-9][0-9,]*(\.[0-9]+)?`)

// ExtractMeta reads generic meta tags. It works on any site and returns nil
// only when no title is present.
func ExtractMeta(html, baseURL string) *MetaResult {
	doc, err := Parse(html, baseURL)
	if err != nil {
		return nil
	}
	return doc.MetaResult()
}

// MetaResult is ExtractMeta over an already parsed document
func (d *Document) MetaResult() *MetaResult {
	title := d.Meta("og:title")
	if title == "" {
		title = d.Meta("twitter:title")
	}
	if title == "" {
		title = strings.Join(strings.Fields(d.Find("title").First().Text()), " ")
	}
	if title == "" {
		return nil
	}

	res := &MetaResult{
		Title:    title,
		SiteName: d.Meta("og:site_name"),
	}

	seen := make(map[string]bool)
	for _, key := range []string{"og:image", "og:image:url", "og:image:secure_url", "twitter:image", "twitter:image:src"} {
		d.Find("meta").Each(func(_ int, s *goquery.Selection) {
			prop, _ := s.Attr("property")
			name, _ := s.Attr("name")
			if !strings.EqualFold(prop, key) && !strings.EqualFold(name, key) {
				return
			}
			content, _ := s.Attr("content")
			if u := d.Resolve(content); u != "" && !seen[u] {
				seen[u] = true
				res.Images = append(res.Images, u)
			}
		})
	}

	for _, key := range []string{"og:price:amount", "product:price:amount", "product:sale_price:amount"} {
		if v := d.Meta(key); v != "" {
			currency := d.Meta(strings.Replace(key, "amount", "currency", 1))
			res.Price = FormatPrice(v, currency)
			if res.Price != "" {
				break
			}
		}
	}

	res.Description = d.Meta("og:description")
	if res.Description == "" {
		res.Description = d.Meta("description")
	}
	return res
}

// FormatPrice turns "39000", "39,000" or "39000.00" into "39,000원".
// Non-KRW currencies keep their code as suffix.
func FormatPrice(raw, currency string) string {
	m := priceDigits.FindString(raw)
	if m == "" {
		return ""
	}
	m = strings.ReplaceAll(m, ",", "")
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || f <= 0 {
		return ""
	}

	suffix := "원"
	if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" && c != "KRW" {
		suffix = " " + c
		return groupThousands(strconv.FormatFloat(f, 'f', -1, 64)) + suffix
	}
	return groupThousands(strconv.FormatInt(int64(f), 10)) + suffix
}

func groupThousands(s string) string {
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
