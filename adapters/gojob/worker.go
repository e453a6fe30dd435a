package gojob

import (
	"fmt"
	"time"

	"github.com/goliatone/go-helpdesk/adapters/gologger"
	queuecmd "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
)

type workerOptions struct {
	concurrency int
	idleDelay   time.Duration
	policy      worker.RetryPolicy
	hooks       []worker.Hook
	logger      glog.Logger
}

type WorkerOption func(*workerOptions)

func WithConcurrency(concurrency int) WorkerOption {
	return func(o *workerOptions) {
		o.concurrency = concurrency
	}
}

// WithIdleDelay sets how long a worker waits after finding the queue empty.
func WithIdleDelay(delay time.Duration) WorkerOption {
	return func(o *workerOptions) {
		o.idleDelay = delay
	}
}

func WithRetryPolicy(policy worker.RetryPolicy) WorkerOption {
	return func(o *workerOptions) {
		o.policy = policy
	}
}

func WithHooks(hooks ...worker.Hook) WorkerOption {
	return func(o *workerOptions) {
		for _, hook := range hooks {
			if hook != nil {
				o.hooks = append(o.hooks, hook)
			}
		}
	}
}

func WithLogger(logger glog.Logger) WorkerOption {
	return func(o *workerOptions) {
		o.logger = logger
	}
}

// NewWorker builds a go-job worker that runs every command in commands off
// jobs. Start and Stop it with the returned worker.
func NewWorker(jobs *Queue, commands *queuecmd.Registry, opts ...WorkerOption) (*worker.Worker, error) {
	if jobs == nil {
		return nil, fmt.Errorf("gojob: queue is required")
	}
	if commands == nil {
		return nil, fmt.Errorf("gojob: command registry is required")
	}
	cfg := workerOptions{concurrency: 1, policy: DefaultRetryPolicy()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = 1
	}
	if cfg.policy == nil {
		cfg.policy = DefaultRetryPolicy()
	}

	workerOpts := []worker.Option{
		worker.WithConcurrency(cfg.concurrency),
		worker.WithRetryPolicy(cfg.policy),
		worker.WithLogger(gologger.ToJobLogger(glog.Ensure(cfg.logger))),
	}
	if cfg.idleDelay > 0 {
		workerOpts = append(workerOpts, worker.WithIdleDelay(cfg.idleDelay))
	}
	if len(cfg.hooks) > 0 {
		workerOpts = append(workerOpts, worker.WithHooks(cfg.hooks...))
	}
	return queuecmd.NewLocalWorker(jobs, commands, queuecmd.LocalWorkerConfig{WorkerOptions: workerOpts})
}
