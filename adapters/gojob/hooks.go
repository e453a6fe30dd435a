package gojob

import (
	"context"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	MetricJobTotal    = "helpdesk_job_total"
	MetricJobDuration = "helpdesk_job_duration_ms"
)

// MetricsHook reports job outcomes to a core.MetricsRecorder.
type MetricsHook struct {
	recorder core.MetricsRecorder
}

func NewMetricsHook(recorder core.MetricsRecorder) *MetricsHook {
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}
	return &MetricsHook{recorder: recorder}
}

func (h *MetricsHook) OnStart(context.Context, worker.Event) {}

func (h *MetricsHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.record(ctx, event, "success")
}

func (h *MetricsHook) OnFailure(ctx context.Context, event worker.Event) {
	h.record(ctx, event, "failure")
}

func (h *MetricsHook) OnRetry(ctx context.Context, event worker.Event) {
	h.record(ctx, event, "retry")
}

func (h *MetricsHook) record(ctx context.Context, event worker.Event, outcome string) {
	if h == nil || h.recorder == nil {
		return
	}
	tags := map[string]string{
		"job_id":  jobID(event.Message),
		"outcome": outcome,
	}
	h.recorder.IncCounter(ctx, MetricJobTotal, 1, tags)
	h.recorder.ObserveHistogram(ctx, MetricJobDuration, float64(event.Duration.Milliseconds()), tags)
}

var _ worker.Hook = (*MetricsHook)(nil)
