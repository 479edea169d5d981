package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsAgent is the user agent token matched against robots.txt groups
const RobotsAgent = "shopscout"

// ErrDisallowedByRobots is returned when robots.txt forbids a fetch
var ErrDisallowedByRobots = Permanent(errors.New("disallowed by robots.txt"))

// RobotsChecker caches robots.txt per origin
type RobotsChecker struct {
	client *http.Client
	agent  string
	cache  sync.Map // origin -> *robotstxt.RobotsData
}

// NewRobotsChecker creates a checker
func NewRobotsChecker(client *http.Client, agent string) *RobotsChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &RobotsChecker{client: client, agent: agent}
}

// Allowed reports whether the agent may fetch rawURL. Missing or broken
// robots.txt files allow everything.
func (rc *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	origin := fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	if data, ok := rc.cache.Load(origin); ok {
		return data.(*robotstxt.RobotsData).TestAgent(u.Path, rc.agent)
	}

	robots := rc.fetch(ctx, origin)
	if robots == nil {
		return true
	}
	rc.cache.Store(origin, robots)
	return robots.TestAgent(u.Path, rc.agent)
}

func (rc *RobotsChecker) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := rc.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return robots
}
