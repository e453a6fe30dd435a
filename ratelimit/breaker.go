package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

var errServerFailure = errors.New("ratelimit: platform server failure")

type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transport errors or 5xx
	// responses that open a host's breaker.
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second, MaxRequests: 1}
}

// BreakerOpenError is returned while a platform host's breaker is open.
type BreakerOpenError struct {
	Bucket string
	Cause  error
}

func (e BreakerOpenError) Error() string {
	return fmt.Sprintf("ratelimit: circuit open for %q: %v", e.Bucket, e.Cause)
}

func (e BreakerOpenError) Unwrap() error {
	return e.Cause
}

func (e BreakerOpenError) HTTPStatusCode() int {
	return http.StatusServiceUnavailable
}

// Breakers keeps one circuit breaker per platform host.
type Breakers struct {
	cfg   BreakerConfig
	mu    sync.Mutex
	items map[string]*gobreaker.CircuitBreaker[*http.Response]
}

func NewBreakers(cfg BreakerConfig) *Breakers {
	defaults := DefaultBreakerConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = defaults.MaxRequests
	}
	return &Breakers{cfg: cfg, items: map[string]*gobreaker.CircuitBreaker[*http.Response]{}}
}

func (b *Breakers) For(bucket string) *gobreaker.CircuitBreaker[*http.Response] {
	bucket = normalizeBucket(bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.items[bucket]; ok {
		return cb
	}
	threshold := b.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        bucket,
		MaxRequests: b.cfg.MaxRequests,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	b.items[bucket] = cb
	return cb
}

// State reports the breaker state for bucket, "closed" when none exists yet.
func (b *Breakers) State(bucket string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.items[normalizeBucket(bucket)]; ok {
		return cb.State().String()
	}
	return gobreaker.StateClosed.String()
}

func (b *Breakers) roundTrip(bucket string, call func() (*http.Response, error)) (*http.Response, error) {
	res, err := b.For(bucket).Execute(func() (*http.Response, error) {
		res, err := call()
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusInternalServerError {
			return res, errServerFailure
		}
		return res, nil
	})
	switch {
	case errors.Is(err, errServerFailure):
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, BreakerOpenError{Bucket: strings.TrimSpace(bucket), Cause: err}
	}
	return res, err
}
