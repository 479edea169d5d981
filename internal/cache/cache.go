// Package cache holds crawl results for a fixed TTL. The crawler receives a
// Cache at construction; there is no process-wide instance.
package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/BenjaminSRussell/shopscout/internal/config"
	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// Cache stores extracted products by key
type Cache interface {
	// Get returns the cached product and true, or false on a miss
	Get(ctx context.Context, key string) (*types.ExtractedProduct, bool, error)
	Set(ctx context.Context, key string, p *types.ExtractedProduct) error
	Close() error
}

// New builds the cache selected by cfg.Driver
func New(cfg config.CacheConfig) (Cache, error) {
	ttl := time.Duration(cfg.TTLMinutes) * time.Minute
	switch cfg.Driver {
	case "", "memory":
		return NewMemory(ttl), nil
	case "redis":
		r, err := NewRedis(context.Background(), cfg.RedisURL, ttl)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "none":
		return Noop{}, nil
	}
	return nil, eris.Errorf("cache: unknown driver %q", cfg.Driver)
}

// Key derives a fixed-length cache key from a canonical URL
func Key(canonicalURL string) string {
	sum := sha1.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	data    []byte
	expires time.Time
}

// Memory is an in-process cache. Expired entries are dropped when they are
// looked up.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemory creates a memory cache; ttl <= 0 defaults to 30 minutes
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*types.ExtractedProduct, bool, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	p, err := decode(e.data)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (m *Memory) Set(_ context.Context, key string, p *types.ExtractedProduct) error {
	data, err := encode(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = entry{data: data, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Close() error { return nil }

// Noop never stores anything
type Noop struct{}

func (Noop) Get(context.Context, string) (*types.ExtractedProduct, bool, error) {
	return nil, false, nil
}
func (Noop) Set(context.Context, string, *types.ExtractedProduct) error { return nil }
func (Noop) Close() error                                               { return nil }

// entries are stored serialized so callers never share a product with the cache
func encode(p *types.ExtractedProduct) ([]byte, error) {
	if p == nil {
		return nil, eris.New("cache: nil product")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, eris.Wrap(err, "cache: encode")
	}
	return data, nil
}

func decode(data []byte) (*types.ExtractedProduct, error) {
	var p types.ExtractedProduct
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "cache: decode")
	}
	return &p, nil
}
