package parser

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// contentSelectors are body containers, most specific first
var contentSelectors = []string{
	"#postViewArea",
	".se-main-container",
	".se-component-content",
	".se-section-text",
	"#postView",
	".post-view",
	".blog-content",
	"article .article-body",
	"article .article-content",
	"article .post-content",
	"article .entry-content",
	"article #articleBody",
	".article-body",
	".article-content",
	".post-content",
	".entry-content",
	"#articleBody",
	".news_end_body",
	"#dic_area",
	".article_view",
	".article_txt",
	".article-body-content",
	".article-body-text",
	".article_text",
	".article-content-body",
	".article-body-wrapper",
	".tt_article_useless_p_margin",
	".wrap_body",
	".markdown-body",
	"main article",
	"article",
	`[role="article"]`,
	".content",
	".post",
	".entry",
	"main",
	"#content",
	".main-content",
}

// unwantedSelectors are removed from a content node before its text is read
var unwantedSelectors = []string{
	"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside",
	"button", "form", "input", "select", "textarea",
	".ad", ".ads", ".advertisement", `[class^="ad-"]`, `[class*=" ad-"]`, `[id^="ad-"]`,
	".banner", ".comment", ".comments", ".related", ".recommend", ".share", ".social",
	".sns", ".tag", ".tags", ".copyright", ".byline", ".reporter",
	`[class*="related"]`, `[class*="recommend"]`, `[class*="comment"]`, `[class*="share"]`,
}

var (
	symbolOnlyLine = regexp.MustCompile(`^[\p{P}\p{S}\s]+$`)
	digitOnlyLine  = regexp.MustCompile(`^[\d\s.,:/-]+$`)
	siteSuffixPipe = regexp.MustCompile(`\s*\|\s*[^|]+$`)
	siteSuffixDash = regexp.MustCompile(`\s+-\s+[^-]{1,20}$`)
)

// minContentRunes is the shortest body text considered a real article
const minContentRunes = 100

// ArticleResult is the static-HTML view of an article
type ArticleResult struct {
	Title   string
	Content string
	Images  []string

	// Selector is the content container that produced Content
	Selector string
}

// ExtractArticle finds the article body as the longest cleaned content
// candidate over minContentRunes, falling back to the whole body
func ExtractArticle(html, baseURL string) *ArticleResult {
	doc, err := Parse(html, baseURL)
	if err != nil {
		return nil
	}
	return doc.Article()
}

// Article is ExtractArticle over an already parsed document
func (d *Document) Article() *ArticleResult {
	res := &ArticleResult{Title: d.ArticleTitle()}

	var best *goquery.Selection
	for _, sel := range contentSelectors {
		node := d.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		node = node.Clone()
		stripUnwanted(node)
		text := CleanText(BlockText(node))
		if utf8.RuneCountInString(text) <= minContentRunes {
			continue
		}
		if utf8.RuneCountInString(text) > utf8.RuneCountInString(res.Content) {
			res.Content = text
			res.Selector = sel
			best = d.Find(sel).First()
		}
	}

	if res.Content == "" {
		body := d.Find("body").Clone()
		stripUnwanted(body)
		res.Content = CleanText(BlockText(body))
		best = d.Find("body")
	}

	res.Images = d.articleImages(best)
	return res
}

// ArticleTitle prefers og:title, then twitter:title, then headline
// elements, and strips a trailing site name
func (d *Document) ArticleTitle() string {
	candidates := []string{
		d.Meta("og:title"),
		d.Meta("twitter:title"),
		d.SelectorText("h1.article-title, h1.post-title, h1.entry-title, .se-title-text, .pcol1"),
		d.SelectorText("h1"),
		d.SelectorText("title"),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		c = siteSuffixPipe.ReplaceAllString(c, "")
		c = siteSuffixDash.ReplaceAllString(c, "")
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// MainFrameURL returns the src of a Naver blog main frame, if any
func (d *Document) MainFrameURL() string {
	src, ok := d.Find("iframe#mainFrame, iframe.se-main-frame").First().Attr("src")
	if !ok {
		return ""
	}
	return d.Resolve(src)
}

func (d *Document) articleImages(node *goquery.Selection) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	add(d.Resolve(d.Meta("og:image")))
	if node != nil {
		node.Find("img").Each(func(_ int, s *goquery.Selection) {
			src := d.Resolve(ImageSrc(s))
			if src == "" || insideAny(s, unwantedSelectors) {
				return
			}
			add(src)
		})
	}
	return out
}

func stripUnwanted(node *goquery.Selection) {
	for _, sel := range unwantedSelectors {
		node.Find(sel).Remove()
	}
}

// CleanText trims each line, collapses inner whitespace, and drops lines
// that are too short or consist only of digits or symbols
func CleanText(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.FieldsFunc(line, unicode.IsSpace), " ")
		if utf8.RuneCountInString(line) <= 2 {
			continue
		}
		if digitOnlyLine.MatchString(line) || symbolOnlyLine.MatchString(line) {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
