// Package persona keeps consistent shopper identities (headers, TLS
// fingerprint, cookies) so that a run of requests to one store looks like a
// single visitor.
package persona

import (
	"math"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"

	shttp "github.com/BenjaminSRussell/shopscout/internal/http"
)

// Persona represents a consistent browsing identity
type Persona struct {
	ID           string
	Created      time.Time
	LastUsed     time.Time
	RequestCount int

	header shttp.BrowserProfile
	tls    shttp.TLSProfile
	jar    http.CookieJar

	// AvgThinkTime is the mean pause between two requests of this visitor
	AvgThinkTime time.Duration

	mu sync.Mutex
}

// Header implements http.Identity
func (p *Persona) Header() shttp.BrowserProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header
}

// TLS implements http.Identity
func (p *Persona) TLS() shttp.TLSProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tls
}

// Jar implements http.Identity
func (p *Persona) Jar() http.CookieJar {
	return p.jar
}

// Mobile reports whether the persona presents as a phone
func (p *Persona) Mobile() bool {
	return p.Header().Mobile
}

// ThinkTime returns a log-normally distributed pause around AvgThinkTime,
// clamped to 0.5–30s
func (p *Persona) ThinkTime() time.Duration {
	p.mu.Lock()
	avg := p.AvgThinkTime
	p.mu.Unlock()
	return logNormal(avg.Seconds(), 0.5)
}

func (p *Persona) touch() {
	p.mu.Lock()
	p.LastUsed = time.Now()
	p.RequestCount++
	p.mu.Unlock()
}

func (p *Persona) usable(lifetime time.Duration, maxRequests int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.Created) <= lifetime && p.RequestCount < maxRequests
}

// Pool hands out one persona per host and mobile flag, replacing it once it
// has aged out or served too many requests
type Pool struct {
	mu       sync.Mutex
	personas map[string]*Persona

	fingerprinter *shttp.TLSFingerprinter
	lifetime      time.Duration
	maxRequests   int
}

// NewPool creates a persona pool
func NewPool(lifetime time.Duration, maxRequests int) *Pool {
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 50
	}
	return &Pool{
		personas:      make(map[string]*Persona),
		fingerprinter: shttp.NewTLSFingerprinter(),
		lifetime:      lifetime,
		maxRequests:   maxRequests,
	}
}

// For returns the persona for host, creating a fresh one when needed
func (pp *Pool) For(host string, mobile bool) (*Persona, error) {
	key := host
	if mobile {
		key = "m:" + host
	}

	pp.mu.Lock()
	defer pp.mu.Unlock()

	if p, ok := pp.personas[key]; ok && p.usable(pp.lifetime, pp.maxRequests) {
		p.touch()
		return p, nil
	}

	p, err := pp.create(mobile)
	if err != nil {
		return nil, err
	}
	pp.personas[key] = p
	return p, nil
}

// Len returns the number of live personas
func (pp *Pool) Len() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.personas)
}

func (pp *Pool) create(mobile bool) (*Persona, error) {
	var header shttp.BrowserProfile
	var tls shttp.TLSProfile
	if mobile {
		header = shttp.IPhoneProfile()
		tls = shttp.TLSProfileFor(header.Name)
	} else {
		tls = pp.fingerprinter.GetRandomProfile()
		header = pp.fingerprinter.GetMatchingHeaderProfile(tls)
		if header.Mobile {
			tls = shttp.TLSProfileFor(shttp.Profiles()[0].Name)
			header = shttp.Profiles()[0]
		}
	}

	jar, err := NewJar()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Persona{
		ID:           uuid.NewString(),
		Created:      now,
		LastUsed:     now,
		RequestCount: 1,
		header:       header,
		tls:          tls,
		jar:          jar,
		AvgThinkTime: logNormal(3.0, 0.8),
	}, nil
}

var naverRoot = &url.URL{Scheme: "https", Host: "naver.com", Path: "/"}

// NewJar creates a public-suffix-aware cookie jar seeded with an NNB
// browser cookie for naver.com, which the stores expect from returning
// visitors
func NewJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, eris.Wrap(err, "persona: create cookie jar")
	}
	jar.SetCookies(naverRoot, []*http.Cookie{{
		Name:    "NNB",
		Value:   NNB(),
		Domain:  "naver.com",
		Path:    "/",
		Expires: time.Now().Add(365 * 24 * time.Hour),
	}})
	return jar, nil
}

// NNB returns a random value shaped like Naver's browser ID cookie
func NNB() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
	b := make([]byte, 13)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// logNormal draws a log-normal duration with the given median in seconds
func logNormal(median, sigma float64) time.Duration {
	v := math.Exp(math.Log(median) + sigma*rand.NormFloat64())
	v = math.Max(0.5, math.Min(v, 30))
	return time.Duration(v * float64(time.Second))
}
