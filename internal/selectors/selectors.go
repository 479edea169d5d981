// Package selectors holds versioned CSS selector tables per marketplace.
//
// Marketplace DOMs change often; tables are data, registered by name and
// version, so a new layout can be shipped as a new table without touching
// extraction code.
package selectors

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// Table names
const (
	NaverBrand = "NAVER_BRAND"
	SmartStore = "SMARTSTORE"
	Coupang    = "COUPANG"
	Generic    = "GENERIC"
)

// Table is one marketplace's selector set. Title and Price selectors are
// tried in order; a meta element contributes its content attribute.
type Table struct {
	Name    string
	Version string

	Title   []string
	Price   []string
	Gallery []string
	Review  []string

	// ProductArea containers are scanned for images only when gallery and
	// review selectors found too few
	ProductArea []string

	// Exclude marks ancestors whose images are never product photos
	Exclude []string

	SpecRows []string

	// ReviewText elements hold the body of one customer review
	ReviewText []string

	ReviewTabKeywords []string
}

// Thresholds are the numeric heuristics shared by every table
type Thresholds struct {
	MinTitleRunes      int
	MinImageSide       int
	MaxAspectRatio     float64
	MinAspectRatio     float64
	ProductAreaLimit   int
	GalleryFloor       int
	DefaultFloor       int
	MaxReviewImages    int
	ReviewTabTextRunes int
}

// DefaultThresholds returns the built-in thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTitleRunes:      5,
		MinImageSide:       150,
		MaxAspectRatio:     3,
		MinAspectRatio:     0.33,
		ProductAreaLimit:   30,
		GalleryFloor:       3,
		DefaultFloor:       1,
		MaxReviewImages:    10,
		ReviewTabTextRunes: 20,
	}
}

// ImageFloor is the minimum image count for a browser result to count as
// complete. Stores with a gallery are expected to show several photos.
func (t Thresholds) ImageFloor(st types.StoreType) int {
	switch st {
	case types.StoreSmartStore, types.StoreBrandStore, types.StoreCoupang:
		return t.GalleryFloor
	}
	return t.DefaultFloor
}

// TableName maps a store type onto its table name
func TableName(st types.StoreType) string {
	switch st {
	case types.StoreBrandStore:
		return NaverBrand
	case types.StoreSmartStore:
		return SmartStore
	case types.StoreCoupang:
		return Coupang
	}
	return Generic
}

// Registry stores tables by name and version
type Registry struct {
	mu     sync.RWMutex
	tables map[string]map[string]Table
	pinned map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]map[string]Table),
		pinned: make(map[string]string),
	}
}

// Register adds or replaces a table version
func (r *Registry) Register(t Table) error {
	if t.Name == "" || t.Version == "" {
		return eris.New("selectors: table needs a name and a version")
	}
	if len(t.Title) == 0 {
		return eris.Errorf("selectors: table %s@%s has no title selectors", t.Name, t.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables[t.Name] == nil {
		r.tables[t.Name] = make(map[string]Table)
	}
	r.tables[t.Name][t.Version] = t
	return nil
}

// Pin makes Lookup return a specific version for every table that has it
func (r *Registry) Pin(version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, versions := range r.tables {
		if _, ok := versions[version]; ok {
			r.pinned[name] = version
		}
	}
}

// Get returns a specific table version
func (r *Registry) Get(name, version string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[name][version]
	return t, ok
}

// Latest returns the pinned or newest version of a table. Versions compare
// lexically, so date-like versions sort naturally.
func (r *Registry) Latest(name string) (Table, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.tables[name]
	if len(versions) == 0 {
		return Table{}, false
	}
	if v, ok := r.pinned[name]; ok {
		return versions[v], true
	}

	keys := make([]string, 0, len(versions))
	for v := range versions {
		keys = append(keys, v)
	}
	sort.Strings(keys)
	return versions[keys[len(keys)-1]], true
}

// For returns the table for a store type, falling back to GENERIC
func (r *Registry) For(st types.StoreType) Table {
	if t, ok := r.Latest(TableName(st)); ok {
		return t
	}
	t, _ := r.Latest(Generic)
	return t
}

// Versions lists registered versions per table name
func (r *Registry) Versions() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.tables))
	for name, versions := range r.tables {
		for v := range versions {
			out[name] = append(out[name], v)
		}
		sort.Strings(out[name])
	}
	return out
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns a registry holding the built-in tables
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, t := range builtinTables() {
			if err := defaultRegistry.Register(t); err != nil {
				panic(err)
			}
		}
	})
	return defaultRegistry
}

// NewDefault returns a fresh registry with the built-in tables, safe to pin
// or extend without affecting Default
func NewDefault() *Registry {
	r := NewRegistry()
	for _, t := range builtinTables() {
		_ = r.Register(t)
	}
	return r
}
