package http

import (
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// BrowserProfile represents a complete browser fingerprint
type BrowserProfile struct {
	Name            string
	UserAgent       string
	AcceptLanguage  string
	Accept          string
	SecChUA         string
	SecChUAPlatform string
	SecChUAMobile   string
	Mobile          bool
}

const koreanAcceptLanguage = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"

const htmlAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"

var browserProfiles = []BrowserProfile{
	{
		Name:            "chrome_windows",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage:  koreanAcceptLanguage,
		Accept:          htmlAccept,
		SecChUA:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"Windows"`,
		SecChUAMobile:   "?0",
	},
	{
		Name:            "chrome_macos",
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage:  koreanAcceptLanguage,
		Accept:          htmlAccept,
		SecChUA:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"macOS"`,
		SecChUAMobile:   "?0",
	},
	{
		Name:            "edge_windows",
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
		AcceptLanguage:  koreanAcceptLanguage,
		Accept:          htmlAccept,
		SecChUA:         `"Microsoft Edge";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"Windows"`,
		SecChUAMobile:   "?0",
	},
	{
		Name:           "safari_macos",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
		AcceptLanguage: koreanAcceptLanguage,
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	},
	{
		Name:            "chrome_android",
		UserAgent:       "Mozilla/5.0 (Linux; Android 14; SM-S921N) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
		AcceptLanguage:  koreanAcceptLanguage,
		Accept:          htmlAccept,
		SecChUA:         `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`,
		SecChUAPlatform: `"Android"`,
		SecChUAMobile:   "?1",
		Mobile:          true,
	},
	{
		Name:           "safari_ios",
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		AcceptLanguage: koreanAcceptLanguage,
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		Mobile:         true,
	},
}

// IPhoneProfile is the profile the Smart Store mobile endpoints expect
func IPhoneProfile() BrowserProfile {
	return browserProfiles[len(browserProfiles)-1]
}

// Profiles returns a copy of the built-in profile table
func Profiles() []BrowserProfile {
	out := make([]BrowserProfile, len(browserProfiles))
	copy(out, browserProfiles)
	return out
}

// HeaderRotator picks browser profiles at random
type HeaderRotator struct {
	profiles []BrowserProfile
	mu       sync.Mutex
	rnd      *rand.Rand
}

// NewHeaderRotator creates a new header rotator
func NewHeaderRotator() *HeaderRotator {
	return &HeaderRotator{
		profiles: browserProfiles,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GetRandomProfile returns a random browser profile, optionally restricted
// to mobile or desktop ones
func (hr *HeaderRotator) GetRandomProfile(mobile bool) BrowserProfile {
	candidates := make([]BrowserProfile, 0, len(hr.profiles))
	for _, p := range hr.profiles {
		if p.Mobile == mobile {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = hr.profiles
	}

	hr.mu.Lock()
	defer hr.mu.Unlock()
	return candidates[hr.rnd.Intn(len(candidates))]
}

// ApplyHeaders applies a browser profile to an HTTP request
func ApplyHeaders(req *http.Request, profile BrowserProfile) {
	req.Header.Set("User-Agent", profile.UserAgent)
	req.Header.Set("Accept", profile.Accept)
	req.Header.Set("Accept-Language", profile.AcceptLanguage)

	if profile.SecChUA != "" {
		req.Header.Set("Sec-Ch-Ua", profile.SecChUA)
	}
	if profile.SecChUAPlatform != "" {
		req.Header.Set("Sec-Ch-Ua-Platform", profile.SecChUAPlatform)
	}
	if profile.SecChUAMobile != "" {
		req.Header.Set("Sec-Ch-Ua-Mobile", profile.SecChUAMobile)
	}
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
