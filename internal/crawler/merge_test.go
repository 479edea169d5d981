package crawler

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

func partial(src types.Source, mutate func(p *types.ExtractedProduct)) *types.ExtractedProduct {
	p := types.NewExtractedProduct("", "")
	p.SourceConfidence = src
	mutate(p)
	return p
}

func TestMergeFillsAndRanks(t *testing.T) {
	dst := types.NewExtractedProduct("c1", smartStoreURL)

	Merge(dst, partial(types.SourceMeta, func(p *types.ExtractedProduct) {
		p.Title = "에버조이 족욕기 JOY-010 메타"
		p.Price = "41,000원"
		p.Description = "메타 설명"
		p.Images = []string{"https://shop-phinf.pstatic.net/a/1.jpg?type=f300"}
	}))
	Merge(dst, partial(types.SourceStealthDOM, func(p *types.ExtractedProduct) {
		p.Title = joyTitle
		p.Images = []string{"https://shop-phinf.pstatic.net/a/1.jpg", "https://shop-phinf.pstatic.net/a/2.jpg"}
		p.Reviews = []string{"좋아요"}
	}))
	Merge(dst, partial(types.SourceSearchAPI, func(p *types.ExtractedProduct) {
		p.Title = "검색 결과 제목 JOY-010"
		p.Price = "38,000원"
		p.MallName = "에버조이"
	}))

	want := types.NewExtractedProduct("c1", smartStoreURL)
	want.Title = joyTitle
	want.Price = "38,000원"
	want.MallName = "에버조이"
	want.Description = "메타 설명"
	want.Images = []string{"https://shop-phinf.pstatic.net/a/1.jpg", "https://shop-phinf.pstatic.net/a/2.jpg"}
	want.Reviews = []string{"좋아요"}
	want.SourceConfidence = types.SourceStealthDOM
	want.FieldSources = map[string]types.Source{
		FieldTitle:       types.SourceStealthDOM,
		FieldPrice:       types.SourceSearchAPI,
		FieldMallName:    types.SourceSearchAPI,
		FieldDescription: types.SourceMeta,
	}

	if diff := cmp.Diff(want, dst, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("merged product mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeLowerSourceNeverOverwrites(t *testing.T) {
	dst := types.NewExtractedProduct("c1", genericURL)
	Merge(dst, partial(types.SourceJSONLD, func(p *types.ExtractedProduct) {
		p.Title = joyTitle
		p.Brand = "에버조이"
	}))
	Merge(dst, partial(types.SourceStealthDOM, func(p *types.ExtractedProduct) {
		p.Title = "다른 제목 JOY-010"
		p.Brand = "다른 브랜드"
	}))

	assert.Equal(t, joyTitle, dst.Title)
	assert.Equal(t, "에버조이", dst.Brand)
	assert.Equal(t, types.SourceJSONLD, dst.SourceConfidence)
}

func TestMergeEqualSourceKeepsFirst(t *testing.T) {
	dst := types.NewExtractedProduct("c1", genericURL)
	Merge(dst, partial(types.SourceMeta, func(p *types.ExtractedProduct) { p.Price = "1,000원" }))
	Merge(dst, partial(types.SourceMeta, func(p *types.ExtractedProduct) { p.Price = "2,000원" }))
	assert.Equal(t, "1,000원", dst.Price)
}

func TestMergePerFieldSources(t *testing.T) {
	dst := types.NewExtractedProduct("c1", genericURL)
	Merge(dst, partial(types.SourceMobileAPI, func(p *types.ExtractedProduct) { p.Price = "5,000원" }))

	mixed := partial(types.SourceMeta, func(p *types.ExtractedProduct) {
		p.Price = "4,000원"
		p.FieldSources[FieldPrice] = types.SourceJSONLD
		p.Brand = "메타 브랜드"
	})
	Merge(dst, mixed)

	assert.Equal(t, "4,000원", dst.Price)
	assert.Equal(t, types.SourceJSONLD, dst.FieldSources[FieldPrice])
	assert.Equal(t, types.SourceMeta, dst.FieldSources[FieldBrand])
}

func TestMergeBounds(t *testing.T) {
	dst := types.NewExtractedProduct("c1", genericURL)
	Merge(dst, partial(types.SourceStealthDOM, func(p *types.ExtractedProduct) {
		p.Description = strings.Repeat("가", types.MaxDescriptionRunes+50)
		p.Reviews = []string{"1", "2", "2", "3", " ", "4", "5", "6", "7"}
	}))
	Merge(dst, partial(types.SourceMobileAPI, func(p *types.ExtractedProduct) {
		p.Reviews = []string{"8"}
	}))

	assert.Equal(t, types.MaxDescriptionRunes, utf8.RuneCountInString(dst.Description))
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, dst.Reviews)
}

func TestMergeNil(t *testing.T) {
	dst := types.NewExtractedProduct("c1", genericURL)
	before := *dst
	Merge(dst, nil)
	Merge(nil, partial(types.SourceMeta, func(*types.ExtractedProduct) {}))
	assert.Equal(t, before.Title, dst.Title)
	assert.Empty(t, dst.FieldSources)
}

func TestMergeErrorPageFlag(t *testing.T) {
	dst := types.NewExtractedProduct("c1", smartStoreURL)
	Merge(dst, partial(types.SourceNone, func(p *types.ExtractedProduct) { p.IsErrorPage = true }))
	assert.True(t, dst.IsErrorPage)

	Merge(dst, partial(types.SourceMobileAPI, func(p *types.ExtractedProduct) {}))
	assert.True(t, dst.IsErrorPage, "an empty partial keeps the flag")

	Merge(dst, partial(types.SourceStealthDOM, func(p *types.ExtractedProduct) { p.Title = joyTitle }))
	assert.False(t, dst.IsErrorPage, "a valid title clears the flag")

	Merge(dst, partial(types.SourceNone, func(p *types.ExtractedProduct) { p.IsErrorPage = true }))
	assert.False(t, dst.IsErrorPage, "a titled product is never an error page")
}
