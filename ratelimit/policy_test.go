package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"golang.org/x/time/rate"
)

func fixedPolicy(now *time.Time) *Policy {
	policy := NewPolicy(NewMemoryStateStore())
	policy.Now = func() time.Time { return *now }
	return policy
}

func TestPolicy_RetryAfterThrottlesBucket(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := fixedPolicy(&now)

	headers := http.Header{}
	headers.Set("Retry-After", "30")
	if err := policy.AfterCall(ctx, "Acme.Zendesk.com", http.StatusTooManyRequests, headers); err != nil {
		t.Fatalf("after call: %v", err)
	}

	err := policy.BeforeCall(ctx, "acme.zendesk.com")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if throttled.RetryAfter != 30*time.Second {
		t.Fatalf("expected 30s retry hint, got %s", throttled.RetryAfter)
	}
	if throttled.HTTPStatusCode() != http.StatusTooManyRequests {
		t.Fatalf("expected 429 status code")
	}
	if svcErr := throttled.ToServiceError(); svcErr.TextCode != core.ServiceErrorRateLimited {
		t.Fatalf("unexpected text code %q", svcErr.TextCode)
	}

	if err := policy.BeforeCall(ctx, "other.zendesk.com"); err != nil {
		t.Fatalf("expected other buckets to stay open, got %v", err)
	}

	now = now.Add(31 * time.Second)
	if err := policy.BeforeCall(ctx, "acme.zendesk.com"); err != nil {
		t.Fatalf("expected bucket to reopen, got %v", err)
	}
}

func TestPolicy_BackoffGrowsWithoutRetryAfter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := fixedPolicy(&now)

	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		if err := policy.AfterCall(ctx, "desk.zoho.com", http.StatusTooManyRequests, http.Header{}); err != nil {
			t.Fatalf("after call %d: %v", attempt, err)
		}
		var throttled ThrottledError
		if !errors.As(policy.BeforeCall(ctx, "desk.zoho.com"), &throttled) {
			t.Fatalf("attempt %d: expected throttled", attempt)
		}
		if throttled.RetryAfter != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, throttled.RetryAfter)
		}
	}

	if err := policy.AfterCall(ctx, "desk.zoho.com", http.StatusOK, http.Header{}); err != nil {
		t.Fatalf("after success: %v", err)
	}
	if err := policy.BeforeCall(ctx, "desk.zoho.com"); err != nil {
		t.Fatalf("expected success to clear throttle, got %v", err)
	}
}

func TestPolicy_ExhaustedRemainingWaitsForReset(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := fixedPolicy(&now)

	headers := http.Header{}
	headers.Set("X-RateLimit-Limit", "100")
	headers.Set("X-RateLimit-Remaining", "0")
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(now.Add(10*time.Second).Unix(), 10))
	if err := policy.AfterCall(ctx, "acme.freshdesk.com", http.StatusOK, headers); err != nil {
		t.Fatalf("after call: %v", err)
	}
	if err := policy.BeforeCall(ctx, "acme.freshdesk.com"); err == nil {
		t.Fatalf("expected exhausted bucket to be throttled")
	}
}

func TestTransport_ShortCircuitsThrottledHost(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := WrapClient(server.Client(), NewPolicy(NewMemoryStateStore()))

	res, err := client.Get(server.URL + "/api/v2/tickets.json")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected upstream 429, got %d", res.StatusCode)
	}

	_, err = client.Get(server.URL + "/api/v2/tickets.json")
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error on second request, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
}

func TestTransport_BreakerOpensAfterServerFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	breakers := NewBreakers(BreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	client := WrapClient(server.Client(), NewPolicy(NewMemoryStateStore()), WithBreakers(breakers))

	for i := 0; i < 2; i++ {
		res, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		_ = res.Body.Close()
		if res.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected upstream 502 to pass through, got %d", res.StatusCode)
		}
	}

	_, err := client.Get(server.URL)
	var open BreakerOpenError
	if !errors.As(err, &open) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if open.HTTPStatusCode() != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 hint, got %d", open.HTTPStatusCode())
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected two upstream calls, got %d", got)
	}
	host := strings.TrimPrefix(server.URL, "http://")
	if state := breakers.State(host); state != "open" {
		t.Fatalf("expected open state, got %q", state)
	}
}

func TestTransport_PacingWaitsOnContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := WrapClient(server.Client(), nil, WithPacing(rate.Every(time.Hour), 1))
	res, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	_ = res.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if _, err := client.Do(req); err == nil {
		t.Fatalf("expected paced request to give up with its context")
	}
}
