package prometheus

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-helpdesk/core"
)

func TestMetricName(t *testing.T) {
	cases := map[string]string{
		core.MetricOperationTotal:    "helpdesk_operation_total",
		core.MetricOperationDuration: "helpdesk_operation_duration_ms",
		"9lives":                     "_9lives",
		" ":                          "",
	}
	for in, want := range cases {
		if got := MetricName(in); got != want {
			t.Fatalf("MetricName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecorderFillsMissingLabels(t *testing.T) {
	recorder := NewRecorder()
	ctx := context.Background()

	recorder.IncCounter(ctx, core.MetricOperationTotal, 1, map[string]string{
		"operation": "sync_tickets",
		"status":    "success",
		"platform":  "zendesk",
	})
	recorder.IncCounter(ctx, core.MetricOperationTotal, 2, map[string]string{
		"operation": "purge_expired_states",
		"status":    "success",
		"unknown":   "dropped",
	})
	recorder.ObserveHistogram(ctx, core.MetricOperationDuration, 12, map[string]string{"operation": "sync_tickets"})

	families, err := recorder.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	var series int
	var sawHistogram bool
	for _, family := range families {
		switch family.GetName() {
		case "helpdesk_operation_total":
			for _, metric := range family.GetMetric() {
				series++
				total += metric.GetCounter().GetValue()
				if len(metric.GetLabel()) != len(DefaultLabels) {
					t.Fatalf("expected %d labels, got %d", len(DefaultLabels), len(metric.GetLabel()))
				}
			}
		case "helpdesk_operation_duration_ms":
			sawHistogram = true
		}
	}
	if series != 2 || total != 3 {
		t.Fatalf("expected 2 series totalling 3, got %d series totalling %v", series, total)
	}
	if !sawHistogram {
		t.Fatalf("expected duration histogram to be registered")
	}
}

func TestRecorderHandlerExposesMetrics(t *testing.T) {
	recorder := NewRecorder()
	recorder.IncCounter(context.Background(), core.MetricTicketsUpserted, 5, map[string]string{"platform": "gmail"})

	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `helpdesk_tickets_upserted{`) {
		t.Fatalf("expected exposition to include tickets counter, got:\n%s", body)
	}
	if !strings.Contains(string(body), `platform="gmail"`) {
		t.Fatalf("expected platform label in exposition")
	}
}
