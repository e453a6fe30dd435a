package freshdesk

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/providers"
	"github.com/goliatone/go-helpdesk/providers/devkit"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFreshdesk_StatusCodesMapToFixedTable(t *testing.T) {
	fake := devkit.NewFakeHTTP(devkit.Route{
		Method: http.MethodGet,
		Host:   "support.freshdesk.com",
		Path:   "/api/v2/tickets",
		Body: `[
			{"id":1,"subject":"a","status":2,"requester_id":11,"created_at":"2026-01-01T00:00:00Z"},
			{"id":2,"subject":"b","status":3,"created_at":"2026-01-02T00:00:00Z"},
			{"id":3,"subject":"c","status":4,"created_at":"2026-01-03T00:00:00Z","updated_at":"2026-01-04T00:00:00Z"},
			{"id":4,"subject":"d","status":5,"responder_id":12,"description_text":"done","created_at":"2026-01-05T00:00:00Z"},
			{"id":5,"subject":"e","status":5,"created_at":"2026-01-06T00:00:00Z"},
			{"id":6,"subject":"f","status":7,"created_at":"2026-01-07T00:00:00Z"}
		]`,
	})
	platform, err := New(Config{
		ClientID:   "fd-client",
		HTTPClient: fake,
		Now:        func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new platform: %v", err)
	}

	tickets, err := platform.FetchTickets(context.Background(), core.FetchTicketsRequest{
		Credential: core.PlatformCredential{
			AccessToken:    "access-1",
			PlatformFields: map[string]string{providers.FieldDomain: "support"},
		},
		Limit: 100,
	})
	if err != nil {
		t.Fatalf("fetch tickets: %v", err)
	}
	want := []string{
		core.TicketStatusOpen,
		core.TicketStatusInProgress,
		core.TicketStatusResolved,
		core.TicketStatusClosed,
		core.TicketStatusClosed,
		"7",
	}
	if len(tickets) != len(want) {
		t.Fatalf("expected %d tickets, got %d", len(want), len(tickets))
	}
	for i, ticket := range tickets {
		if ticket.Status != want[i] {
			t.Fatalf("ticket %s: expected %q, got %q", ticket.ExternalTicketID, want[i], ticket.Status)
		}
	}
	if tickets[3].AgentName != "12" || tickets[3].Thread != "done" || tickets[0].CustomerID != "11" {
		t.Fatalf("unexpected field mapping %+v / %+v", tickets[0], tickets[3])
	}
	if tickets[4].ResolvedDate == nil || !tickets[4].ResolvedDate.Equal(fixedNow) {
		t.Fatalf("expected closed ticket without update time to resolve at fetch time")
	}

	recorded, _ := fake.Last("support.freshdesk.com", "/api/v2/tickets")
	if recorded.URL.Query().Get("per_page") != "100" || recorded.URL.Query().Get("order_by") != "updated_at" {
		t.Fatalf("unexpected query %q", recorded.URL.RawQuery)
	}
}

func TestFreshdesk_Conformance(t *testing.T) {
	platform, err := New(Config{ClientID: "fd-client", ClientSecret: "fd-secret", HTTPClient: devkit.NewFakeHTTP()})
	if err != nil {
		t.Fatalf("new platform: %v", err)
	}
	if err := devkit.ValidatePlatformConformance(context.Background(), platform, "fd-client", map[string]string{
		providers.FieldDomain: "support",
	}); err != nil {
		t.Fatalf("conformance: %v", err)
	}
}
