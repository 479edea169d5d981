package images

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	setEstimate = 10_000
	setFPRate   = 0.001
)

// Set tracks image base URLs for low-confidence image sources. It is a bare
// bloom filter: a false positive drops one new image, never keeps a
// duplicate.
type Set struct {
	mu    sync.Mutex
	bloom *bloom.BloomFilter
	n     int
}

// NewSet creates an empty set
func NewSet() *Set {
	return &Set{bloom: bloom.NewWithEstimates(setEstimate, setFPRate)}
}

// Add records src and reports whether its base URL was new
func (s *Set) Add(src string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bloom.TestAndAdd([]byte(BaseURL(src))) {
		return false
	}
	s.n++
	return true
}

// Has reports whether the base URL of src was probably added
func (s *Set) Has(src string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bloom.Test([]byte(BaseURL(src)))
}

// Len returns the number of base URLs Add reported as new
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
