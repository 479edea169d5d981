package parser

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/BenjaminSRussell/shopscout/internal/images"
	"github.com/BenjaminSRussell/shopscout/internal/selectors"
)

// ImageCandidates collects images from the table's gallery, review and
// product-area selectors. Product areas are only scanned when the first two
// found fewer than the gallery floor, and then at most ProductAreaLimit
// images.
func (d *Document) ImageCandidates(table selectors.Table, th selectors.Thresholds) []images.Candidate {
	var out []images.Candidate
	seen := make(map[string]bool)

	collect := func(sel *goquery.Selection, kind images.Kind, limit int) {
		sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if limit > 0 && len(out) >= limit {
				return false
			}
			src := d.Resolve(ImageSrc(s))
			if src == "" || seen[src] {
				return true
			}
			seen[src] = true
			out = append(out, images.Candidate{
				URL:      src,
				Kind:     kind,
				Width:    intAttr(s, "width"),
				Height:   intAttr(s, "height"),
				Alt:      s.AttrOr("alt", ""),
				Excluded: insideAny(s, table.Exclude),
			})
			return true
		})
	}

	for _, sel := range table.Gallery {
		collect(d.Find(sel), images.KindGallery, 0)
	}
	for _, sel := range table.Review {
		collect(d.Find(sel), images.KindReview, 0)
	}
	if len(out) < th.GalleryFloor {
		limit := len(out) + th.ProductAreaLimit
		for _, sel := range table.ProductArea {
			collect(d.Find(sel).Find("img"), images.KindProductArea, limit)
		}
	}
	return out
}

// Price returns the first price text matched by the table, formatted
func (d *Document) Price(table selectors.Table) string {
	for _, sel := range table.Price {
		if p := FormatPrice(d.SelectorText(sel), ""); p != "" {
			return p
		}
	}
	return ""
}

// Spec joins "key: value" rows from the table's spec selectors
func (d *Document) Spec(table selectors.Table) string {
	var rows []string
	for _, sel := range table.SpecRows {
		d.Find(sel).Each(func(_ int, s *goquery.Selection) {
			key := strings.Join(strings.Fields(s.Find("th").First().Text()), " ")
			val := strings.Join(strings.Fields(BlockText(s.Find("td").First())), " ")
			if key != "" && val != "" {
				rows = append(rows, key+": "+val)
			}
		})
		if len(rows) > 0 {
			break
		}
	}
	return strings.Join(rows, "\n")
}

func insideAny(s *goquery.Selection, containers []string) bool {
	for _, c := range containers {
		if s.Closest(c).Length() > 0 {
			return true
		}
	}
	return false
}

func intAttr(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	return n
}
