package gojob

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-job/queue"
	jobsql "github.com/goliatone/go-job/queue/adapters/postgres"
	dedupsql "github.com/goliatone/go-job/queue/idempotency/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const (
	TableJobs        = "helpdesk_jobs"
	TableDeadLetters = "helpdesk_job_dead_letters"
	TableJobStatus   = "helpdesk_job_status"
	TableJobDedup    = "helpdesk_job_dedup"

	DefaultDeadLetterLimit = 500
)

// Queue is the SQL backed job queue shared by the scheduler and the workers.
// Dead lettered jobs are trimmed to the newest DeadLetterLimit rows.
type Queue struct {
	*jobsql.Adapter
	db              *bun.DB
	dedup           *dedupsql.Store
	deadLetterLimit int
}

type queueOptions struct {
	visibilityTimeout time.Duration
	deadLetterLimit   int
	now               func() time.Time
}

type QueueOption func(*queueOptions)

// WithVisibilityTimeout sets how long a dequeued job stays leased.
func WithVisibilityTimeout(timeout time.Duration) QueueOption {
	return func(o *queueOptions) {
		o.visibilityTimeout = timeout
	}
}

// WithDeadLetterLimit caps the dead letter table. Zero or less keeps every row.
func WithDeadLetterLimit(limit int) QueueOption {
	return func(o *queueOptions) {
		o.deadLetterLimit = limit
	}
}

func WithClock(now func() time.Time) QueueOption {
	return func(o *queueOptions) {
		o.now = now
	}
}

// OpenQueue creates the job tables on db when missing and returns the queue.
func OpenQueue(ctx context.Context, db *bun.DB, opts ...QueueOption) (*Queue, error) {
	if db == nil {
		return nil, fmt.Errorf("gojob: database is required")
	}
	cfg := queueOptions{deadLetterLimit: DefaultDeadLetterLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	storageOpts := []jobsql.Option{
		jobsql.WithTableName(TableJobs),
		jobsql.WithDLQTableName(TableDeadLetters),
		jobsql.WithStatusTableName(TableJobStatus),
	}
	dedupOpts := []dedupsql.Option{dedupsql.WithTableName(TableJobDedup)}
	if db.Dialect().Name() == dialect.SQLite {
		storageOpts = append(storageOpts, jobsql.WithDialect(jobsql.DialectSQLite), jobsql.WithUseSkipLocked(false))
		dedupOpts = append(dedupOpts, dedupsql.WithDialect(dedupsql.DialectSQLite))
	}
	if cfg.visibilityTimeout > 0 {
		storageOpts = append(storageOpts, jobsql.WithVisibilityTimeout(cfg.visibilityTimeout))
	}
	if cfg.now != nil {
		storageOpts = append(storageOpts, jobsql.WithClock(cfg.now))
		dedupOpts = append(dedupOpts, dedupsql.WithClock(cfg.now))
	}

	storage := jobsql.NewStorage(db.DB, storageOpts...)
	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("gojob: migrate job tables: %w", err)
	}
	dedup := dedupsql.NewStore(db.DB, dedupOpts...)
	if err := dedup.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("gojob: migrate dedup table: %w", err)
	}

	return &Queue{
		Adapter:         jobsql.NewAdapter(storage),
		db:              db,
		dedup:           dedup,
		deadLetterLimit: cfg.deadLetterLimit,
	}, nil
}

// Dedup is the shared store used to skip syncs that are already queued.
func (q *Queue) Dedup() *dedupsql.Store {
	return q.dedup
}

// Dequeue leases the next due job. Dead lettering the returned delivery trims
// the dead letter table.
func (q *Queue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	delivery, err := q.Adapter.Dequeue(ctx)
	if err != nil || delivery == nil || q.deadLetterLimit <= 0 {
		return delivery, err
	}
	return &trimmingDelivery{Delivery: delivery, queue: q}, nil
}

type DeadLetter struct {
	ID             string
	Attempts       int
	LastError      string
	DeadLetteredAt time.Time
}

// DeadLetters lists the newest dead lettered jobs first.
func (q *Queue) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	rows := []deadLetterRow{}
	query := q.db.NewSelect().
		TableExpr(TableDeadLetters).
		Column("id", "attempts", "last_error", "dead_lettered_at").
		OrderExpr("dead_lettered_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("gojob: list dead letters: %w", err)
	}
	out := make([]DeadLetter, 0, len(rows))
	for _, row := range rows {
		out = append(out, DeadLetter{
			ID:             row.ID,
			Attempts:       row.Attempts,
			LastError:      row.LastError,
			DeadLetteredAt: time.Unix(0, row.DeadLetteredAt).UTC(),
		})
	}
	return out, nil
}

func (q *Queue) DeadLetterCount(ctx context.Context) (int, error) {
	return q.db.NewSelect().TableExpr(TableDeadLetters).Count(ctx)
}

// TrimDeadLetters deletes all but the newest keep dead letters.
func (q *Queue) TrimDeadLetters(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	newest := q.db.NewSelect().
		TableExpr(TableDeadLetters).
		Column("id").
		OrderExpr("dead_lettered_at DESC, id DESC").
		Limit(keep)
	res, err := q.db.NewDelete().
		TableExpr(TableDeadLetters).
		Where("id NOT IN (?)", newest).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("gojob: trim dead letters: %w", err)
	}
	return res.RowsAffected()
}

type deadLetterRow struct {
	ID             string `bun:"id"`
	Attempts       int    `bun:"attempts"`
	LastError      string `bun:"last_error"`
	DeadLetteredAt int64  `bun:"dead_lettered_at"`
}

type trimmingDelivery struct {
	queue.Delivery
	queue *Queue
}

func (d *trimmingDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	if err := d.Delivery.Nack(ctx, opts); err != nil {
		return err
	}
	if opts.Disposition != queue.NackDispositionDeadLetter {
		return nil
	}
	_, err := d.queue.TrimDeadLetters(ctx, d.queue.deadLetterLimit)
	return err
}

// Attempts and ExtendLease keep the worker's optional delivery interfaces
// visible through the wrapper.
func (d *trimmingDelivery) Attempts() int {
	if counted, ok := d.Delivery.(interface{ Attempts() int }); ok {
		return counted.Attempts()
	}
	return 0
}

func (d *trimmingDelivery) ExtendLease(ctx context.Context, ttl time.Duration) error {
	if extender, ok := d.Delivery.(queue.LeaseExtender); ok {
		return extender.ExtendLease(ctx, ttl)
	}
	return nil
}

var (
	_ queue.Enqueuer          = (*Queue)(nil)
	_ queue.ScheduledEnqueuer = (*Queue)(nil)
	_ queue.Dequeuer          = (*Queue)(nil)
)
