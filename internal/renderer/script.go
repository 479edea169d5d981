package renderer

import (
	"encoding/json"
	"fmt"

	"github.com/BenjaminSRussell/shopscout/internal/selectors"
)

// stealthOverrides complement the go-rod stealth script with the locale a
// Korean shopper would have
const stealthOverrides = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['ko-KR', 'ko', 'en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

const bodyTextScript = `document.body ? document.body.innerText : ''`

const scrollToBottomScript = `window.scrollTo(0, document.body ? document.body.scrollHeight : 0)`

// snapshotConfig is marshalled into the page as the script's input
type snapshotConfig struct {
	Title      []string `json:"title"`
	Price      []string `json:"price"`
	Gallery    []string `json:"gallery"`
	Review     []string `json:"review"`
	Area       []string `json:"area"`
	Exclude    []string `json:"exclude"`
	Spec       []string `json:"spec"`
	ReviewText []string `json:"reviewText"`
	Floor      int      `json:"floor"`
	AreaLimit  int      `json:"areaLimit"`
	MaxReviews int      `json:"maxReviews"`
}

// snapshotJS reads everything the crawler needs in one evaluation. Only
// selector-matched images are collected, never every <img> on the page.
const snapshotJS = `(() => {
  const cfg = %s;
  const text = el => {
    if (!el) return '';
    const raw = el.tagName === 'META' ? (el.getAttribute('content') || '') : (el.textContent || '');
    return raw.replace(/\s+/g, ' ').trim();
  };
  const each = (sel, fn) => { try { document.querySelectorAll(sel).forEach(fn); } catch (e) {} };

  const titles = [];
  for (const sel of cfg.title) each(sel, el => { const t = text(el); if (t) titles.push({ selector: sel, text: t }); });

  let price = '';
  for (const sel of cfg.price) {
    each(sel, el => { if (!price) price = text(el); });
    if (price) break;
  }

  const isExcluded = img => cfg.exclude.some(sel => { try { return !!img.closest(sel); } catch (e) { return false; } });
  const images = [];
  const seen = new Set();
  const collect = (sels, kind, limit) => {
    for (const sel of sels) {
      each(sel, img => {
        if (limit && images.length >= limit) return;
        const src = img.currentSrc || img.getAttribute('src') || img.getAttribute('data-src') || img.getAttribute('data-lazy-src') || '';
        if (!src || src.startsWith('data:') || seen.has(src)) return;
        seen.add(src);
        images.push({
          url: new URL(src, location.href).href,
          kind: kind,
          width: img.naturalWidth || img.width || 0,
          height: img.naturalHeight || img.height || 0,
          alt: img.alt || '',
          excluded: isExcluded(img),
        });
      });
    }
  };
  collect(cfg.gallery, 'gallery', 0);
  collect(cfg.review, 'review', 0);
  if (images.length < cfg.floor) collect(cfg.area.map(s => s + ' img'), 'product_area', images.length + cfg.areaLimit);

  const spec = [];
  for (const sel of cfg.spec) {
    each(sel, tr => { const k = text(tr.querySelector('th')); const v = text(tr.querySelector('td')); if (k && v) spec.push(k + ': ' + v); });
    if (spec.length) break;
  }

  const reviews = [];
  for (const sel of cfg.reviewText) {
    each(sel, el => { const t = text(el); if (reviews.length < cfg.maxReviews && t.length > 20 && t.length < 500) reviews.push(t); });
    if (reviews.length >= 3) break;
  }

  return { url: location.href, titles, price, images, spec: spec.join('\n'), reviews, text: document.body ? document.body.innerText : '' };
})()`

// clickReviewTabJS clicks the first visible short element whose text
// contains a review keyword and reports whether it did
const clickReviewTabJS = `(() => {
  const keywords = %s;
  const maxLen = %d;
  const nodes = document.querySelectorAll('a, button, [role="tab"], li');
  for (const el of nodes) {
    const t = (el.textContent || '').trim();
    if (!t || t.length > maxLen) continue;
    if (!keywords.some(k => t.includes(k))) continue;
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0) continue;
    el.click();
    return true;
  }
  return false;
})()`

func snapshotScript(t selectors.Table, th selectors.Thresholds, maxReviews int) string {
	cfg := snapshotConfig{
		Title:      nonNil(t.Title),
		Price:      nonNil(t.Price),
		Gallery:    nonNil(t.Gallery),
		Review:     nonNil(t.Review),
		Area:       nonNil(t.ProductArea),
		Exclude:    nonNil(t.Exclude),
		Spec:       nonNil(t.SpecRows),
		ReviewText: nonNil(t.ReviewText),
		Floor:      th.GalleryFloor,
		AreaLimit:  th.ProductAreaLimit,
		MaxReviews: maxReviews,
	}
	b, _ := json.Marshal(cfg)
	return fmt.Sprintf(snapshotJS, b)
}

func clickReviewTabScript(keywords []string, maxRunes int) string {
	b, _ := json.Marshal(nonNil(keywords))
	return fmt.Sprintf(clickReviewTabJS, b, maxRunes)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
