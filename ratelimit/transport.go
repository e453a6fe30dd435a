package ratelimit

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Transport wraps platform API round trips, bucketed by host. In order it
// paces requests, refuses throttled hosts, runs the call through the host's
// circuit breaker and records the response's rate limit headers.
type Transport struct {
	Base     http.RoundTripper
	Policy   *Policy
	Breakers *Breakers

	pace     rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type TransportOption func(*Transport)

func WithBreakers(breakers *Breakers) TransportOption {
	return func(t *Transport) {
		t.Breakers = breakers
	}
}

// WithPacing spaces requests to each host at limit per second with burst.
func WithPacing(limit rate.Limit, burst int) TransportOption {
	return func(t *Transport) {
		t.pace = limit
		t.burst = burst
	}
}

func NewTransport(base http.RoundTripper, policy *Policy, opts ...TransportOption) *Transport {
	t := &Transport{Base: base, Policy: policy, limiters: map[string]*rate.Limiter{}}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	ctx := req.Context()
	bucket := req.URL.Host

	if limiter := t.limiter(bucket); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := t.Policy.BeforeCall(ctx, bucket); err != nil {
		return nil, err
	}

	call := func() (*http.Response, error) { return base.RoundTrip(req) }
	var (
		res *http.Response
		err error
	)
	if t.Breakers != nil {
		res, err = t.Breakers.roundTrip(bucket, call)
	} else {
		res, err = call()
	}
	if err != nil {
		return nil, err
	}
	if err := t.Policy.AfterCall(ctx, bucket, res.StatusCode, res.Header); err != nil {
		_ = res.Body.Close()
		return nil, err
	}
	return res, nil
}

func (t *Transport) limiter(bucket string) *rate.Limiter {
	if t.pace <= 0 {
		return nil
	}
	bucket = normalizeBucket(bucket)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limiters == nil {
		t.limiters = map[string]*rate.Limiter{}
	}
	limiter, ok := t.limiters[bucket]
	if !ok {
		burst := t.burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(t.pace, burst)
		t.limiters[bucket] = limiter
	}
	return limiter
}

// WrapClient returns a copy of client whose transport applies policy and
// opts. A nil client wraps http.DefaultTransport.
func WrapClient(client *http.Client, policy *Policy, opts ...TransportOption) *http.Client {
	wrapped := &http.Client{}
	if client != nil {
		copied := *client
		wrapped = &copied
	}
	wrapped.Transport = NewTransport(wrapped.Transport, policy, opts...)
	return wrapped
}
