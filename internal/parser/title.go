package parser

import (
	"github.com/BenjaminSRussell/shopscout/internal/selectors"
	"github.com/BenjaminSRussell/shopscout/internal/validate"
)

// TitleStrategy is one way of finding a product title in a static page.
// Extract returns "" when the strategy has nothing to offer.
type TitleStrategy struct {
	Name    string
	Extract func(d *Document) string
}

// TitleStrategies builds the ordered chain for a selector table: every
// table selector in order, then og:title, then <title>.
func TitleStrategies(table selectors.Table) []TitleStrategy {
	chain := make([]TitleStrategy, 0, len(table.Title)+2)
	for _, sel := range table.Title {
		chain = append(chain, TitleStrategy{
			Name:    sel,
			Extract: func(d *Document) string { return d.SelectorText(sel) },
		})
	}
	chain = append(chain,
		TitleStrategy{Name: "og:title", Extract: func(d *Document) string { return d.Meta("og:title") }},
		TitleStrategy{Name: "title", Extract: func(d *Document) string { return d.SelectorText("title") }},
	)
	return chain
}

// FirstValidTitle runs strategies in order and returns the first cleaned
// candidate accepted by rules, with the strategy name
func FirstValidTitle(d *Document, strategies []TitleStrategy, rules *validate.TitleRules) (string, string) {
	if rules == nil {
		rules = validate.DefaultTitleRules()
	}
	for _, s := range strategies {
		candidate := validate.CleanTitle(s.Extract(d))
		if candidate == "" {
			continue
		}
		if rules.CheckTitle(candidate) == validate.OK {
			return candidate, s.Name
		}
	}
	return "", ""
}
