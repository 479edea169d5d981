package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenjaminSRussell/shopscout/internal/config"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

func sampleProduct() *types.ExtractedProduct {
	p := types.NewExtractedProduct("crawl-1", "https://smartstore.naver.com/examplestore/products/123456")
	p.Title = "[에버조이] 건식 좌훈 족욕기 (JOY-010)"
	p.Price = "39,000원"
	p.Images = []string{"https://shop-phinf.pstatic.net/a.jpg"}
	p.SourceConfidence = types.SourceJSONLD
	return p
}

func TestMemoryExpiresLazily(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", sampleProduct()))

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "39,000원", got.Price)
	assert.Equal(t, types.SourceJSONLD, got.SourceConfidence)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Len())
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	p := sampleProduct()
	require.NoError(t, m.Set(ctx, "k", p))

	p.Title = "mutated"
	got, _, _ := m.Get(ctx, "k")
	got.Images[0] = "mutated"

	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "[에버조이] 건식 좌훈 족욕기 (JOY-010)", again.Title)
	assert.Equal(t, "https://shop-phinf.pstatic.net/a.jpg", again.Images[0])
}

func TestRedisRoundTripAndTTL(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)

	r, err := NewRedis(ctx, "redis://"+s.Addr(), 10*time.Minute)
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, Key("https://smartstore.naver.com/examplestore/products/123456"), sampleProduct()))
	got, ok, err := r.Get(ctx, Key("https://smartstore.naver.com/examplestore/products/123456"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[에버조이] 건식 좌훈 족욕기 (JOY-010)", got.Title)

	s.FastForward(11 * time.Minute)
	_, ok, err = r.Get(ctx, Key("https://smartstore.naver.com/examplestore/products/123456"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnreachable(t *testing.T) {
	_, err := NewRedis(context.Background(), "redis://127.0.0.1:1", time.Minute)
	assert.Error(t, err)
}

func TestNewSelectsDriver(t *testing.T) {
	c, err := New(config.CacheConfig{Driver: "memory", TTLMinutes: 5})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	c, err = New(config.CacheConfig{Driver: "none"})
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "k", sampleProduct()))
	_, ok, _ := c.Get(context.Background(), "k")
	assert.False(t, ok)

	_, err = New(config.CacheConfig{Driver: "memcached"})
	assert.Error(t, err)
}

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("https://a.example/p/1"), Key("https://a.example/p/1"))
	assert.NotEqual(t, Key("https://a.example/p/1"), Key("https://a.example/p/2"))
	assert.Len(t, Key("x"), 40)
}

func TestNoopNeverHits(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	require.NoError(t, c.Set(ctx, "k", sampleProduct()))
	p, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, p)
	assert.NoError(t, c.Close())
}
