package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

func TestLimiter_Allow(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	l := NewLimiter(5, time.Minute, 5)
	defer l.Close()

	for i := range 5 {
		res := l.Allow("ip:1")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Limit != 5 {
			t.Errorf("Limit = %d, want 5", res.Limit)
		}
		if res.RetryAfter != 0 {
			t.Errorf("RetryAfter = %v on an allowed request", res.RetryAfter)
		}
	}
	res := l.Allow("ip:1")
	if res.Allowed {
		t.Fatal("6th request should be rate limited")
	}
	if res.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter < time.Second {
		t.Errorf("RetryAfter = %v, want >= 1s", res.RetryAfter)
	}
	if !res.ResetAt.After(time.Now()) {
		t.Errorf("ResetAt = %v is not in the future", res.ResetAt)
	}

	if !l.Allow("ip:2").Allowed {
		t.Error("another key should have its own bucket")
	}
	if l.Len() != 2 {
		t.Errorf("Len() = %d, want 2", l.Len())
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(600, time.Minute, 1)
	defer l.Close()
	l.Allow("a")
	// Far enough in the future for the bucket to be idle and refilled.
	l.sweep(time.Now().Add(time.Hour))
	if l.Len() != 0 {
		t.Errorf("Len() = %d after sweep, want 0", l.Len())
	}
	l.Allow("b")
	l.sweep(time.Now())
	if l.Len() != 1 {
		t.Errorf("Len() = %d, recently used bucket was swept", l.Len())
	}
}

func TestConfig_Match(t *testing.T) {
	c := NewConfig(100, 10)
	defer c.Close()
	tests := []struct {
		method, path string
		want         *Tier
	}{
		{http.MethodGet, "/characters", c.Read},
		{http.MethodGet, "/characters/search", c.Read},
		{http.MethodPut, "/characters/1", c.Write},
		{http.MethodDelete, "/characters/1", c.Write},
		{http.MethodGet, "/api/health", nil},
		{http.MethodGet, "/metrics", nil},
		{http.MethodOptions, "/characters", nil},
	}
	for _, tt := range tests {
		if got := c.Match(tt.method, tt.path); got != tt.want {
			t.Errorf("Match(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}

	unlimited := NewConfig(0, 0)
	if unlimited.Match(http.MethodGet, "/characters") != nil || unlimited.Match(http.MethodPut, "/characters/1") != nil {
		t.Error("zero budgets should disable the tiers")
	}
	var nilCfg *Config
	if nilCfg.Match(http.MethodGet, "/") != nil {
		t.Error("nil config should not limit")
	}
	nilCfg.Close()
}

func TestWriteHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHeaders(w, Result{Allowed: false, Limit: 60, Remaining: 0, ResetAt: time.Unix(1706012345, 0), RetryAfter: 30 * time.Second})
	want := map[string]string{
		"X-RateLimit-Limit":     "60",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "1706012345",
		"Retry-After":           "30",
	}
	for k, v := range want {
		if got := w.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}

	w = httptest.NewRecorder()
	WriteHeaders(w, Result{Allowed: true, Limit: 60, Remaining: 59})
	if got := w.Header().Get("Retry-After"); got != "" {
		t.Errorf("Retry-After = %q on an allowed request", got)
	}
}

func TestMiddleware(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	c := NewConfig(0, 6) // burst of 1 write
	defer c.Close()
	rejected := 0
	h := Middleware(c, func(w http.ResponseWriter, _ *http.Request, _ Result) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(method, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/characters/1", http.NoBody)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := do(http.MethodDelete, "10.0.0.1"); w.Code != http.StatusNoContent {
		t.Fatalf("first write = %d", w.Code)
	} else if w.Header().Get("X-RateLimit-Limit") != "6" {
		t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
	}
	w := do(http.MethodDelete, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests || rejected != 1 {
		t.Fatalf("second write = %d, rejected = %d", w.Code, rejected)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if w := do(http.MethodDelete, "10.0.0.2"); w.Code != http.StatusNoContent {
		t.Errorf("other client write = %d", w.Code)
	}
	if w := do(http.MethodGet, "10.0.0.1"); w.Code != http.StatusNoContent {
		t.Errorf("unlimited read = %d", w.Code)
	}
}
