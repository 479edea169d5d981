package images

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BenjaminSRussell/shopscout/internal/selectors"
)

const photo = "https://shop-phinf.pstatic.net/20240101_12/1704067200_abc.jpg"

func TestDedupPrefersHighestResolution(t *testing.T) {
	in := []string{
		photo + "?type=f300",
		photo + "?type=f640_640",
		photo + "?type=m510",
		"https://shop-phinf.pstatic.net/20240101_12/other.jpg?type=f300",
	}
	got := Dedup(in)
	assert.Equal(t, []string{
		photo + "?type=f640_640",
		"https://shop-phinf.pstatic.net/20240101_12/other.jpg?type=f300",
	}, got)
}

func TestDedupKeepsOriginalOverResized(t *testing.T) {
	got := Dedup([]string{photo + "?type=f300", photo})
	assert.Equal(t, []string{photo}, got)
}

func TestDedupSizeSuffix(t *testing.T) {
	got := Dedup([]string{
		"https://cdn.example.com/p/item_200x200.jpg",
		"https://cdn.example.com/p/item_800x800.jpg",
	})
	assert.Equal(t, []string{"https://cdn.example.com/p/item_800x800.jpg"}, got)
}

func TestHighRes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{photo + "?type=f300", photo + "?type=f640_640"},
		{photo + "?type=f120_120_q80", photo + "?type=f640_640"},
		{photo + "?type=w640", photo + "?type=f640_640"},
		{"https://shop-phinf.pstatic.net/s_120/abc.jpg", "https://shop-phinf.pstatic.net/o/abc.jpg"},
		{"https://shop-phinf.pstatic.net/a/abc_300x300.jpg", "https://shop-phinf.pstatic.net/a/abc.jpg"},
		{"https://checkout.phinf.naver.net/2024/abc.jpg?type=f300", "https://checkout.phinf.naver.net/2024/abc.jpg"},
		{"https://image.nmv.naver.net/blog/abc.jpg?type=w2", "https://image.nmv.naver.net/blog/abc.jpg"},
		{"//shop-phinf.pstatic.net/a.jpg?type=f80", "https://shop-phinf.pstatic.net/a.jpg?type=f640_640"},
		{"https://cdn.example.com/a.jpg?w=200", "https://cdn.example.com/a.jpg?w=200"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HighRes(tt.in), tt.in)
	}
}

func TestIsBlocked(t *testing.T) {
	blocked := []string{
		"https://video-phinf.pstatic.net/a.jpg",
		"https://searchad-phinf.pstatic.net/ad.jpg",
		"https://shop-phinf.pstatic.net/banner/a.jpg",
		"https://shop-phinf.pstatic.net/a/storeLogo.png",
		"https://shopping-phinf.pstatic.net/main_123/123.jpg",
		"https://shop-phinf.pstatic.net/a.jpg?type=f80",
		"https://img.example.com/icon_50x50.png",
		"https://img.example.com/spacer.gif",
		"data:image/png;base64,AAAA",
	}
	for _, u := range blocked {
		assert.True(t, IsBlocked(u), u)
	}
	assert.False(t, IsBlocked(photo+"?type=f640_640"))
}

func TestFilterAccept(t *testing.T) {
	f := NewFilter(selectors.DefaultThresholds(), true)

	assert.True(t, f.Accept(Candidate{URL: photo, Width: 800, Height: 800}))
	assert.True(t, f.Accept(Candidate{URL: photo}))
	assert.False(t, f.Accept(Candidate{URL: photo, Width: 100, Height: 100}), "too small")
	assert.False(t, f.Accept(Candidate{URL: photo, Width: 1200, Height: 300}), "banner ratio")
	assert.False(t, f.Accept(Candidate{URL: photo, Width: 200, Height: 800}), "tall ratio")
	assert.False(t, f.Accept(Candidate{URL: photo, Excluded: true}))
	assert.False(t, f.Accept(Candidate{URL: photo, Alt: "5년 무상 A/S"}))
	assert.False(t, f.Accept(Candidate{URL: "https://cdn.example.com/products/p1.jpg"}), "not on CDN")

	open := NewFilter(selectors.DefaultThresholds(), false)
	assert.True(t, open.Accept(Candidate{URL: "https://cdn.example.com/products/p1.jpg"}))
}

func TestClean(t *testing.T) {
	f := NewFilter(selectors.DefaultThresholds(), false)
	cands := []Candidate{
		{URL: photo + "?type=f300"},
		{URL: photo + "?type=f640_640"},
		{URL: "https://shop-phinf.pstatic.net/logo/a.png"},
	}
	for i := 0; i < 5; i++ {
		cands = append(cands, Candidate{URL: fmt.Sprintf("https://cdn.example.com/products/p%d.jpg", i)})
	}

	got := f.Clean(cands, 4)
	assert.Len(t, got, 4)
	assert.Equal(t, photo+"?type=f640_640", got[0])
}

func TestSet(t *testing.T) {
	s := NewSet()
	assert.True(t, s.Add(photo+"?type=f300"))
	assert.False(t, s.Add(photo+"?type=f640_640"))
	assert.True(t, s.Has("http:"+photo[len("https:"):]))
	assert.True(t, s.Add("https://shop-phinf.pstatic.net/other.jpg"))
	assert.Equal(t, 2, s.Len())
}

func TestSetAtEstimate(t *testing.T) {
	s := NewSet()
	added := 0
	for i := range setEstimate {
		if s.Add(fmt.Sprintf("https://shop-phinf.pstatic.net/2026/p%05d.jpg", i)) {
			added++
		}
	}
	// bloom positives drop new images, never admit repeats
	assert.GreaterOrEqual(t, added, setEstimate-50)
	assert.Equal(t, added, s.Len())
	for i := range 100 {
		assert.False(t, s.Add(fmt.Sprintf("https://shop-phinf.pstatic.net/2026/p%05d.jpg?type=f640", i)))
	}
	assert.Equal(t, added, s.Len())
}
