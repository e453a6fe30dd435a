package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-command"
	helpdeskcommand "github.com/goliatone/go-helpdesk/command"
	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-job/queue"
	queuecmd "github.com/goliatone/go-job/queue/command"
	qidempotency "github.com/goliatone/go-job/queue/idempotency"
)

// ErrAlreadyQueued is returned with the earlier receipt when a sync for the
// same connection and window is still on the queue.
var ErrAlreadyQueued = errors.New("gojob: sync already queued for this window")

const defaultDedupTTL = 15 * time.Minute

// NewCommandRegistry registers the queued helpdesk commands. The worker
// decodes each job's parameters into the command message and runs it.
func NewCommandRegistry(
	sync command.Commander[helpdeskcommand.SyncTicketsMessage],
	purge command.Commander[helpdeskcommand.PurgeStatesMessage],
) (*queuecmd.Registry, error) {
	if sync == nil || purge == nil {
		return nil, fmt.Errorf("gojob: sync and purge commands are required")
	}
	registry := queuecmd.NewRegistry()
	if err := queuecmd.RegisterCommand(registry, sync); err != nil {
		return nil, fmt.Errorf("gojob: register sync command: %w", err)
	}
	if err := queuecmd.RegisterCommand(registry, purge); err != nil {
		return nil, fmt.Errorf("gojob: register purge command: %w", err)
	}
	return registry, nil
}

// Jobs enqueues helpdesk commands onto the job queue.
type Jobs struct {
	enqueuer queue.Enqueuer
	commands *queuecmd.Registry
	dedup    qidempotency.Store
}

func NewJobs(enqueuer queue.Enqueuer, commands *queuecmd.Registry, dedup qidempotency.Store) (*Jobs, error) {
	if enqueuer == nil {
		return nil, fmt.Errorf("gojob: enqueuer is required")
	}
	if commands == nil {
		return nil, fmt.Errorf("gojob: command registry is required")
	}
	if dedup == nil {
		return nil, fmt.Errorf("gojob: dedup store is required")
	}
	return &Jobs{enqueuer: enqueuer, commands: commands, dedup: dedup}, nil
}

type storedReceipt struct {
	DispatchID string    `json:"dispatch_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// EnqueueSync queues one sync for connection unless one was already queued in
// the same window. Dedup is kept out of the job message so retries of the
// queued job still execute.
func (j *Jobs) EnqueueSync(ctx context.Context, connection core.PlatformConnection, window time.Duration, now time.Time) (queue.EnqueueReceipt, error) {
	if strings.TrimSpace(connection.ID) == "" {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: connection id is required")
	}
	ttl := window
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	key := SyncDedupKey(connection.ID, window, now)
	record, created, err := j.dedup.Acquire(ctx, key, ttl)
	if err != nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: acquire sync dedup key: %w", err)
	}
	if !created {
		stored := storedReceipt{}
		_ = json.Unmarshal(record.Payload, &stored)
		return queue.EnqueueReceipt{DispatchID: stored.DispatchID, EnqueuedAt: stored.EnqueuedAt}, ErrAlreadyQueued
	}

	receipt, err := queuecmd.EnqueueWithOptions(ctx, j.enqueuer, j.commands, JobIDSyncTickets,
		SyncParams(core.SyncRequest{
			ProfileID:    connection.ProfileID,
			PlatformType: connection.PlatformType,
			ConnectionID: connection.ID,
		}),
		queuecmd.EnqueueOptions{CorrelationID: connection.ID},
	)
	if err != nil {
		_ = j.dedup.Delete(ctx, key)
		return queue.EnqueueReceipt{}, err
	}

	payload, err := json.Marshal(storedReceipt{DispatchID: receipt.DispatchID, EnqueuedAt: receipt.EnqueuedAt.UTC()})
	if err == nil {
		status := qidempotency.StatusCompleted
		// The job is queued either way. A lost payload only blanks the
		// receipt reported for a duplicate.
		_ = j.dedup.Update(ctx, key, qidempotency.Update{Status: &status, Payload: &payload})
	}
	return receipt, nil
}

// EnqueuePurge queues an expired OAuth state purge. Purges are idempotent and
// are not deduplicated.
func (j *Jobs) EnqueuePurge(ctx context.Context) (queue.EnqueueReceipt, error) {
	return queuecmd.Enqueue(ctx, j.enqueuer, j.commands, JobIDPurgeStates, map[string]any{})
}
