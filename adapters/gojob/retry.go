package gojob

import (
	"errors"
	"net/http"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

// RetryPolicy bounds background sync retries. Failures that another attempt
// cannot fix are dead lettered right away. HTTP triggered syncs never go
// through the queue and are not retried.
type RetryPolicy struct {
	Base worker.DefaultRetryPolicy
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: worker.DefaultRetryPolicy{
		MaxAttempts: 3,
		Backoff: worker.BackoffConfig{
			Strategy:    worker.BackoffExponential,
			Interval:    30 * time.Second,
			MaxInterval: 10 * time.Minute,
			Jitter:      true,
		},
	}}
}

// NewRetryPolicy is DefaultRetryPolicy with maxAttempts when positive.
func NewRetryPolicy(maxAttempts int) RetryPolicy {
	policy := DefaultRetryPolicy()
	if maxAttempts > 0 {
		policy.Base.MaxAttempts = maxAttempts
	}
	return policy
}

func (p RetryPolicy) Decide(attempt int, err error) queue.NackOptions {
	if !Retryable(err) {
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		return queue.NackOptions{
			Disposition: queue.NackDispositionDeadLetter,
			Reason:      reason,
		}
	}
	return p.Base.Decide(attempt, err)
}

// Retryable reports whether a failed job is worth another attempt. Caller
// errors such as a revoked grant or a disconnected platform are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrConnectionNotFound) || errors.Is(err, core.ErrCredentialNotFound) {
		return false
	}
	switch core.TextCode(err) {
	case core.ServiceErrorCredentialsNotFound, core.ServiceErrorConfigurationMissing:
		return false
	}
	status := core.HTTPStatus(err)
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 400 && status < 500:
		return false
	default:
		return true
	}
}

var _ worker.RetryPolicy = RetryPolicy{}
