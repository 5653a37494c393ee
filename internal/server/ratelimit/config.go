// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"net/http"
	"time"
)

// Tier is a named limiter. Buckets are keyed by client IP.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Key returns the bucket key of identifier in this tier.
func (t *Tier) Key(identifier string) string {
	return t.Name + ":" + identifier
}

// Config holds the limiters per tier. A nil tier is unlimited.
type Config struct {
	Read  *Tier
	Write *Tier
}

// NewConfig returns tiers allowing readPerMin GET requests and writePerMin
// mutating requests per minute per client. Zero disables a tier. Bursts are
// a sixth of the per-minute budget.
func NewConfig(readPerMin, writePerMin int) *Config {
	c := &Config{}
	if readPerMin > 0 {
		c.Read = &Tier{Name: "read", Limiter: NewLimiter(readPerMin, time.Minute, readPerMin/6)}
	}
	if writePerMin > 0 {
		c.Write = &Tier{Name: "write", Limiter: NewLimiter(writePerMin, time.Minute, writePerMin/6)}
	}
	return c
}

// Match returns the tier for a request, or nil for requests that are not rate
// limited.
func (c *Config) Match(method, path string) *Tier {
	if c == nil {
		return nil
	}
	switch path {
	case "/api/health", "/metrics":
		return nil
	}
	switch method {
	case http.MethodGet, http.MethodHead:
		return c.Read
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return c.Write
	}
	return nil
}

// Close stops all limiter sweepers.
func (c *Config) Close() {
	if c == nil {
		return
	}
	for _, t := range []*Tier{c.Read, c.Write} {
		if t != nil {
			t.Limiter.Close()
		}
	}
}
