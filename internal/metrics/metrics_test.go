package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maruel/chardb/internal/dataset"
	"github.com/maruel/chardb/internal/records"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New()
	ctx := context.Background()
	m.Observe(ctx, records.OpList, time.Millisecond, nil)
	m.Observe(ctx, records.OpList, time.Millisecond, nil)
	m.Observe(ctx, records.OpUpdate, time.Millisecond, fmt.Errorf("x: %w", records.ErrRecordNotFound))
	m.Observe(ctx, records.OpSearch, time.Millisecond, records.ErrValidation)
	m.Observe(ctx, records.OpDelete, time.Millisecond, dataset.ErrLockTimeout)
	m.Observe(ctx, records.OpDelete, time.Millisecond, errors.New("disk on fire"))

	tests := []struct {
		op, result string
		want       float64
	}{
		{"list", "ok", 2},
		{"update", "not_found", 1},
		{"search", "invalid", 1},
		{"delete", "lock_timeout", 1},
		{"delete", "error", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.opsTotal.WithLabelValues(tt.op, tt.result)); got != tt.want {
			t.Errorf("ops{%s,%s} = %v, want %v", tt.op, tt.result, got, tt.want)
		}
	}
}

func TestObserveGuard(t *testing.T) {
	m := New()
	m.ObserveGuard(time.Millisecond, nil)
	m.ObserveGuard(time.Second, context.DeadlineExceeded)
	m.ObserveGuard(time.Second, fmt.Errorf("failed to lock: %w", context.DeadlineExceeded))
	m.ObserveGuard(0, context.Canceled)

	if got := testutil.ToFloat64(m.guardFailures.WithLabelValues("timeout")); got != 2 {
		t.Errorf("timeouts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.guardFailures.WithLabelValues("canceled")); got != 1 {
		t.Errorf("canceled = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.guardWait); got != 1 {
		t.Errorf("guard wait series = %d, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "GET /characters", http.StatusOK, 3*time.Millisecond)
	m.Observe(context.Background(), records.OpList, time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`http_requests_total{method="GET",path="GET /characters",status="200"} 1`,
		`chardb_operations_total{op="list",result="ok"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output is missing %q", want)
		}
	}
}
