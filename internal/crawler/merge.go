package crawler

import (
	"strings"
	"unicode/utf8"

	"github.com/BenjaminSRussell/shopscout/internal/images"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// Field names used in ExtractedProduct.FieldSources
const (
	FieldTitle       = "title"
	FieldPrice       = "price"
	FieldBrand       = "brand"
	FieldMallName    = "mall_name"
	FieldDescription = "description"
	FieldSpec        = "spec"
)

// Merge folds partial into dst. A scalar field is filled when empty and
// overwritten only by a strictly higher-ranked source. Images and reviews
// append with dedup. dst.SourceConfidence follows the title's source and
// dst.IsErrorPage holds only while dst has no title.
func Merge(dst, partial *types.ExtractedProduct) {
	if dst == nil || partial == nil {
		return
	}
	if dst.FieldSources == nil {
		dst.FieldSources = make(map[string]types.Source)
	}

	src := func(field string) types.Source {
		if s, ok := partial.FieldSources[field]; ok {
			return s
		}
		return partial.SourceConfidence
	}

	mergeField(dst, FieldTitle, &dst.Title, strings.TrimSpace(partial.Title), src(FieldTitle))
	mergeField(dst, FieldPrice, &dst.Price, strings.TrimSpace(partial.Price), src(FieldPrice))
	mergeField(dst, FieldBrand, &dst.Brand, strings.TrimSpace(partial.Brand), src(FieldBrand))
	mergeField(dst, FieldMallName, &dst.MallName, strings.TrimSpace(partial.MallName), src(FieldMallName))
	mergeField(dst, FieldDescription, &dst.Description, truncateRunes(strings.TrimSpace(partial.Description), types.MaxDescriptionRunes), src(FieldDescription))
	mergeField(dst, FieldSpec, &dst.Spec, strings.TrimSpace(partial.Spec), src(FieldSpec))

	dst.Images = images.Dedup(append(dst.Images, partial.Images...))
	dst.ReviewImages = images.Dedup(append(dst.ReviewImages, partial.ReviewImages...))
	dst.Reviews = appendReviews(dst.Reviews, partial.Reviews)

	if dst.Title != "" {
		dst.SourceConfidence = dst.FieldSources[FieldTitle]
	}
	// an error page flag only sticks while nothing has produced a title
	dst.IsErrorPage = (dst.IsErrorPage || partial.IsErrorPage) && !dst.HasTitle()
}

func mergeField(dst *types.ExtractedProduct, field string, cur *string, val string, src types.Source) {
	if val == "" || src == types.SourceNone {
		return
	}
	if *cur == "" || src > dst.FieldSources[field] {
		*cur = val
		dst.FieldSources[field] = src
	}
}

func appendReviews(dst, more []string) []string {
	if dst == nil {
		dst = make([]string, 0, types.MaxReviews)
	}
	seen := make(map[string]bool, len(dst))
	for _, r := range dst {
		seen[r] = true
	}
	for _, r := range more {
		if len(dst) >= types.MaxReviews {
			break
		}
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		dst = append(dst, r)
	}
	return dst
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
