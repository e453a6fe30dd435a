// Package sync enqueues background ticket syncs for every active connection
// and periodic purges of expired OAuth states.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-helpdesk/adapters/gojob"
	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-job/queue"
	glog "github.com/goliatone/go-logger/glog"
)

type ActiveConnectionLister interface {
	ListActive(ctx context.Context) ([]core.PlatformConnection, error)
}

// JobEnqueuer is implemented by gojob.Jobs.
type JobEnqueuer interface {
	EnqueueSync(ctx context.Context, connection core.PlatformConnection, window time.Duration, now time.Time) (queue.EnqueueReceipt, error)
	EnqueuePurge(ctx context.Context) (queue.EnqueueReceipt, error)
}

type Scheduler struct {
	Connections   ActiveConnectionLister
	Jobs          JobEnqueuer
	SyncInterval  time.Duration
	PurgeInterval time.Duration
	Logger        glog.Logger
	Now           func() time.Time
}

// TickResult counts what one sync tick enqueued. Receipts holds the dispatch
// receipt of every job the tick queued.
type TickResult struct {
	Enqueued int
	Skipped  int
	Failed   int
	Receipts []queue.EnqueueReceipt
}

func NewScheduler(connections ActiveConnectionLister, jobs JobEnqueuer, syncInterval, purgeInterval time.Duration, logger glog.Logger) *Scheduler {
	return &Scheduler{
		Connections:   connections,
		Jobs:          jobs,
		SyncInterval:  syncInterval,
		PurgeInterval: purgeInterval,
		Logger:        glog.Ensure(logger),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run enqueues one sync round immediately, then one per SyncInterval, until
// ctx is done. A non-positive PurgeInterval disables state purges.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.SyncInterval <= 0 {
		return fmt.Errorf("sync: scheduler interval must be positive")
	}

	syncTicker := time.NewTicker(s.SyncInterval)
	defer syncTicker.Stop()

	var purgeC <-chan time.Time
	if s.PurgeInterval > 0 {
		purgeTicker := time.NewTicker(s.PurgeInterval)
		defer purgeTicker.Stop()
		purgeC = purgeTicker.C
	}

	s.runSync(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-syncTicker.C:
			s.runSync(ctx)
		case <-purgeC:
			if _, err := s.EnqueuePurge(ctx); err != nil {
				s.logger().Warn("state purge enqueue failed", "error", err)
			}
		}
	}
}

// TickSync enqueues one sync job per active connection. Connections already
// queued in this window are skipped. Enqueue failures are counted and logged;
// only a failure to list connections is returned.
func (s *Scheduler) TickSync(ctx context.Context) (TickResult, error) {
	if err := s.validate(); err != nil {
		return TickResult{}, err
	}
	connections, err := s.Connections.ListActive(ctx)
	if err != nil {
		return TickResult{}, err
	}
	now := s.now()
	result := TickResult{}
	for _, connection := range connections {
		receipt, err := s.Jobs.EnqueueSync(ctx, connection, s.SyncInterval, now)
		if errors.Is(err, gojob.ErrAlreadyQueued) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			s.logger().Warn("sync enqueue failed",
				"connection_id", connection.ID,
				"platform", string(connection.PlatformType),
				"error", err,
			)
			continue
		}
		result.Enqueued++
		result.Receipts = append(result.Receipts, receipt)
	}
	return result, nil
}

func (s *Scheduler) EnqueuePurge(ctx context.Context) (queue.EnqueueReceipt, error) {
	if err := s.validate(); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	return s.Jobs.EnqueuePurge(ctx)
}

func (s *Scheduler) runSync(ctx context.Context) {
	result, err := s.TickSync(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger().Error("listing active connections failed", "error", err)
		}
		return
	}
	s.logger().Debug("sync round enqueued",
		"enqueued", result.Enqueued,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
}

func (s *Scheduler) validate() error {
	if s == nil || s.Connections == nil {
		return fmt.Errorf("sync: scheduler requires a connection registry")
	}
	if s.Jobs == nil {
		return fmt.Errorf("sync: scheduler requires a job enqueuer")
	}
	return nil
}

func (s *Scheduler) logger() glog.Logger {
	return glog.Ensure(s.Logger)
}

func (s *Scheduler) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
