package crawler

import (
	"net/url"
	"strings"
	"sync"

	"github.com/BenjaminSRussell/shopscout/internal/parser"
)

// Frontier is the batch queue. It drops URLs whose canonical form was
// already queued and hands out the rest round robin by host, so one slow
// marketplace does not starve the others.
type Frontier struct {
	mu sync.Mutex

	queues map[string][]string
	hosts  []string
	next   int

	// seen is exact: a batch URL is never dropped on a false positive
	seen map[string]struct{}

	queued    int
	processed int
}

// NewFrontier creates an empty frontier
func NewFrontier() *Frontier {
	return &Frontier{
		queues: make(map[string][]string),
		seen:   make(map[string]struct{}),
	}
}

// Add queues rawURL unless an equivalent URL was queued before
func (f *Frontier) Add(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return false
	}
	key := parser.CanonicalURL(rawURL)
	host := ""
	if u, err := url.Parse(key); err == nil {
		host = strings.ToLower(u.Hostname())
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[key]; ok {
		return false
	}
	f.seen[key] = struct{}{}

	if _, ok := f.queues[host]; !ok {
		f.hosts = append(f.hosts, host)
	}
	f.queues[host] = append(f.queues[host], rawURL)
	f.queued++
	return true
}

// Next returns the next URL, rotating across hosts
func (f *Frontier) Next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := 0; i < len(f.hosts); i++ {
		host := f.hosts[f.next]
		f.next = (f.next + 1) % len(f.hosts)
		if q := f.queues[host]; len(q) > 0 {
			f.queues[host] = q[1:]
			return q[0], true
		}
	}
	return "", false
}

// MarkProcessed increments the processed counter
func (f *Frontier) MarkProcessed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++
}

// Stats returns how many URLs were queued and processed
func (f *Frontier) Stats() (queued, processed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued, f.processed
}

// Size returns the number of pending URLs
func (f *Frontier) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	total := 0
	for _, q := range f.queues {
		total += len(q)
	}
	return total
}
