package gojob

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

type capturingHook struct {
	mu       sync.Mutex
	success  []worker.Event
	failures []worker.Event
	retries  []worker.Event
}

func (h *capturingHook) OnStart(context.Context, worker.Event) {}

func (h *capturingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.mu.Lock()
	h.success = append(h.success, event)
	h.mu.Unlock()
}

func (h *capturingHook) OnFailure(_ context.Context, event worker.Event) {
	h.mu.Lock()
	h.failures = append(h.failures, event)
	h.mu.Unlock()
}

func (h *capturingHook) OnRetry(_ context.Context, event worker.Event) {
	h.mu.Lock()
	h.retries = append(h.retries, event)
	h.mu.Unlock()
}

func (h *capturingHook) counts() (int, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.success), len(h.retries), len(h.failures)
}

func immediateRetries(maxAttempts int) RetryPolicy {
	return RetryPolicy{Base: worker.DefaultRetryPolicy{
		MaxAttempts: maxAttempts,
		Backoff:     worker.BackoffConfig{Strategy: worker.BackoffNone},
	}}
}

func startWorker(t *testing.T, q *Queue, hook *capturingHook, policy RetryPolicy, syncCmd *recordingSync, purgeCmd *countingPurge) {
	t.Helper()
	w, err := NewWorker(q, testRegistry(t, syncCmd, purgeCmd),
		WithRetryPolicy(policy),
		WithHooks(hook),
		WithIdleDelay(5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start worker: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.Stop(ctx)
	})
}

func waitFor(t *testing.T, what string, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if done() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func deadLetterCount(t *testing.T, q *Queue) int {
	t.Helper()
	count, err := q.DeadLetterCount(context.Background())
	if err != nil {
		t.Fatalf("dead letter count: %v", err)
	}
	return count
}

func TestWorker_RunsQueuedSyncCommand(t *testing.T) {
	q := openTestQueue(t)
	syncCmd := &recordingSync{}
	purgeCmd := &countingPurge{}
	hook := &capturingHook{}
	jobs := testJobs(t, q, testRegistry(t, syncCmd, purgeCmd))

	connection := core.PlatformConnection{ID: "conn_7", ProfileID: "profile_3", PlatformType: core.PlatformGmail}
	receipt, err := jobs.EnqueueSync(context.Background(), connection, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("enqueue sync: %v", err)
	}
	if _, err := jobs.EnqueuePurge(context.Background()); err != nil {
		t.Fatalf("enqueue purge: %v", err)
	}

	startWorker(t, q, hook, immediateRetries(3), syncCmd, purgeCmd)
	waitFor(t, "both jobs", func() bool {
		success, _, _ := hook.counts()
		return success == 2
	})

	got := syncCmd.last()
	if got.ProfileID != "profile_3" || got.PlatformType != core.PlatformGmail || got.ConnectionID != "conn_7" {
		t.Fatalf("unexpected decoded sync request %+v", got)
	}
	if purgeCmd.count() != 1 {
		t.Fatalf("expected one purge, got %d", purgeCmd.count())
	}
	waitFor(t, "succeeded status", func() bool {
		status, err := q.GetDispatchStatus(context.Background(), receipt.DispatchID)
		return err == nil && status.State == queue.DispatchStateSucceeded
	})
}

func TestWorker_DeadLettersAfterMaxAttempts(t *testing.T) {
	q := openTestQueue(t)
	syncCmd := &recordingSync{err: errors.New("zendesk upstream unavailable")}
	purgeCmd := &countingPurge{}
	hook := &capturingHook{}
	jobs := testJobs(t, q, testRegistry(t, syncCmd, purgeCmd))

	if _, err := jobs.EnqueueSync(context.Background(), testConnection("conn_1"), time.Minute, time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	startWorker(t, q, hook, immediateRetries(3), syncCmd, purgeCmd)
	waitFor(t, "dead letter", func() bool { return deadLetterCount(t, q) == 1 })

	if syncCmd.count() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", syncCmd.count())
	}
	_, retries, failures := hook.counts()
	if retries != 2 || failures != 1 {
		t.Fatalf("expected 2 retries and 1 failure, got %d and %d", retries, failures)
	}
	letters, err := q.DeadLetters(context.Background(), 1)
	if err != nil {
		t.Fatalf("dead letters: %v", err)
	}
	if letters[0].Attempts != 3 || letters[0].LastError != "zendesk upstream unavailable" {
		t.Fatalf("unexpected dead letter %+v", letters[0])
	}
}

func TestWorker_DeadLettersMissingCredentialsOnFirstAttempt(t *testing.T) {
	q := openTestQueue(t)
	syncCmd := &recordingSync{err: core.CredentialsNotFoundError(core.PlatformZendesk)}
	purgeCmd := &countingPurge{}
	hook := &capturingHook{}
	jobs := testJobs(t, q, testRegistry(t, syncCmd, purgeCmd))

	if _, err := jobs.EnqueueSync(context.Background(), testConnection("conn_1"), time.Minute, time.Now()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	startWorker(t, q, hook, immediateRetries(3), syncCmd, purgeCmd)
	waitFor(t, "dead letter", func() bool { return deadLetterCount(t, q) == 1 })

	if syncCmd.count() != 1 {
		t.Fatalf("expected a single attempt, got %d", syncCmd.count())
	}
	if _, retries, _ := hook.counts(); retries != 0 {
		t.Fatalf("expected no retries, got %d", retries)
	}
}

func TestNewWorkerRequiresDependencies(t *testing.T) {
	if _, err := NewWorker(nil, nil); err == nil {
		t.Fatalf("expected missing queue to fail")
	}
	q := openTestQueue(t)
	if _, err := NewWorker(q, nil); err == nil {
		t.Fatalf("expected missing registry to fail")
	}
}

func TestRetryPolicyDecide(t *testing.T) {
	policy := NewRetryPolicy(3)
	transient := errors.New("connection reset")

	opts := policy.Decide(1, transient)
	if opts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected retry on first transient failure, got %q", opts.Disposition)
	}
	if opts.Delay < 15*time.Second || opts.Delay > 45*time.Second {
		t.Fatalf("expected jittered 30s backoff, got %s", opts.Delay)
	}
	if opts := policy.Decide(3, transient); opts.Disposition != queue.NackDispositionDeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %q", opts.Disposition)
	}

	rateLimited := core.RateLimitedError(nil, core.PlatformZendesk)
	if opts := policy.Decide(1, rateLimited); opts.Disposition != queue.NackDispositionRetry {
		t.Fatalf("expected rate limits to retry, got %q", opts.Disposition)
	}
	for _, err := range []error{
		core.CredentialsNotFoundError(core.PlatformZoho),
		core.ConfigurationError("Zoho Desk client secret is not configured"),
		core.BadInputError("profile id is required"),
		core.ErrConnectionNotFound,
	} {
		if opts := policy.Decide(1, err); opts.Disposition != queue.NackDispositionDeadLetter {
			t.Fatalf("expected %v to dead letter, got %q", err, opts.Disposition)
		}
	}
	if core.HTTPStatus(rateLimited) != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for rate limited error")
	}
}

type recordedMetric struct {
	name string
	tags map[string]string
}

type capturingRecorder struct {
	counters []recordedMetric
}

func (r *capturingRecorder) IncCounter(_ context.Context, name string, _ int64, tags map[string]string) {
	r.counters = append(r.counters, recordedMetric{name: name, tags: tags})
}

func (r *capturingRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

func TestMetricsHookTagsOutcome(t *testing.T) {
	recorder := &capturingRecorder{}
	hook := NewMetricsHook(recorder)
	hook.OnRetry(context.Background(), worker.Event{Message: &job.ExecutionMessage{JobID: JobIDSyncTickets}})
	if len(recorder.counters) != 1 {
		t.Fatalf("expected one counter, got %d", len(recorder.counters))
	}
	got := recorder.counters[0]
	if got.name != MetricJobTotal || got.tags["outcome"] != "retry" || got.tags["job_id"] != JobIDSyncTickets {
		t.Fatalf("unexpected metric %+v", got)
	}
}
