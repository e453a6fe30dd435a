package gojob

import (
	"fmt"
	"time"

	helpdeskcommand "github.com/goliatone/go-helpdesk/command"
	"github.com/goliatone/go-helpdesk/core"
	job "github.com/goliatone/go-job"
)

// Job ids are the command message types so the queued command registry and
// the dispatcher agree on one name per job.
const (
	JobIDSyncTickets = helpdeskcommand.TypeSyncTickets
	JobIDPurgeStates = helpdeskcommand.TypePurgeStates
)

// SyncParams encodes req as the parameters of a queued SyncTicketsMessage.
func SyncParams(req core.SyncRequest) map[string]any {
	request := map[string]any{
		"profile_id": req.ProfileID,
		"platform":   string(req.PlatformType),
	}
	if req.ConnectionID != "" {
		request["connection_id"] = req.ConnectionID
	}
	return map[string]any{"request": request}
}

// SyncDedupKey buckets by window so a slow tick does not queue a connection
// twice.
func SyncDedupKey(connectionID string, window time.Duration, now time.Time) string {
	bucket := now.UTC().Unix()
	if window > 0 {
		bucket = now.UTC().Truncate(window).Unix()
	}
	return fmt.Sprintf("sync:%s:%d", connectionID, bucket)
}

func jobID(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	return msg.JobID
}
