package gmail

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/providers"
	"github.com/goliatone/go-helpdesk/providers/devkit"
	"github.com/goliatone/go-helpdesk/transport"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
)

const (
	authHost  = "oauth.example.test"
	apiHost   = "gmail.example.test"
	apiPrefix = "/gmail/v1/users/me"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPlatform(t *testing.T, fake *devkit.FakeHTTP) *Platform {
	t.Helper()
	platform, err := New(Config{
		ClientID:     "gm-client",
		ClientSecret: "gm-secret",
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://" + authHost + "/auth",
			TokenURL:  "https://" + authHost + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		APIEndpoint: "https://" + apiHost,
		HTTPClient:  fake.Client(),
		Now:         func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("new platform: %v", err)
	}
	return platform
}

func TestGmail_AuthorizeURLForcesConsent(t *testing.T) {
	platform := newPlatform(t, devkit.NewFakeHTTP())
	if err := devkit.ValidatePlatformConformance(context.Background(), platform, "gm-client", nil); err != nil {
		t.Fatalf("conformance: %v", err)
	}
	begin, err := platform.BeginAuth(context.Background(), core.BeginAuthRequest{
		State:       "state-1",
		RedirectURI: "https://api.example.test/oauth/gmail/callback",
	})
	if err != nil {
		t.Fatalf("begin auth: %v", err)
	}
	parsed, _ := url.Parse(begin.URL)
	query := parsed.Query()
	if query.Get("access_type") != "offline" || query.Get("prompt") != "consent" {
		t.Fatalf("expected offline consent prompt, got %q", parsed.RawQuery)
	}
	if query.Get("scope") != "https://www.googleapis.com/auth/gmail.readonly" {
		t.Fatalf("unexpected scope %q", query.Get("scope"))
	}
}

func TestGmail_ExchangeStoresMailboxAddress(t *testing.T) {
	fake := devkit.NewFakeHTTP(
		devkit.Route{
			Method: http.MethodPost,
			Host:   authHost,
			Path:   "/token",
			Body:   `{"access_token":"access-1","refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`,
		},
		devkit.Route{
			Method: http.MethodGet,
			Host:   apiHost,
			Path:   apiPrefix + "/profile",
			Body:   `{"emailAddress":"support@acme.test","messagesTotal":42}`,
		},
	)
	platform := newPlatform(t, fake)

	tokens, err := platform.ExchangeCode(context.Background(), core.ExchangeRequest{
		Code:        "code-1",
		RedirectURI: "https://api.example.test/oauth/gmail/callback",
	})
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if tokens.AccessToken != "access-1" || tokens.RefreshToken != "refresh-1" || tokens.TokenType != "bearer" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if tokens.ExpiresAt == nil {
		t.Fatalf("expected expiry")
	}
	if tokens.Fields[providers.FieldEmail] != "support@acme.test" {
		t.Fatalf("expected mailbox address, got %v", tokens.Fields)
	}
	exchange, _ := fake.Last(authHost, "/token")
	if exchange.Form().Get("redirect_uri") != "https://api.example.test/oauth/gmail/callback" {
		t.Fatalf("expected redirect uri in exchange, got %q", exchange.Body)
	}
}

func TestGmail_ExchangeRejectionKeepsStatus(t *testing.T) {
	fake := devkit.NewFakeHTTP(devkit.Route{
		Method:     http.MethodPost,
		Host:       authHost,
		Path:       "/token",
		StatusCode: http.StatusBadRequest,
		Body:       `{"error":"invalid_grant","error_description":"Bad Request"}`,
	})

	_, err := newPlatform(t, fake).ExchangeCode(context.Background(), core.ExchangeRequest{Code: "code-1"})
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
	if statusErr.Detail != "invalid_grant: Bad Request" {
		t.Fatalf("unexpected detail %q", statusErr.Detail)
	}
}

func TestGmail_RefreshKeepsRefreshToken(t *testing.T) {
	fake := devkit.NewFakeHTTP(devkit.Route{
		Method: http.MethodPost,
		Host:   authHost,
		Path:   "/token",
		Body:   `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`,
	})

	tokens, err := newPlatform(t, fake).Refresh(context.Background(), core.PlatformCredential{
		RefreshToken: "refresh-1",
		Scopes:       []string{"https://www.googleapis.com/auth/gmail.readonly"},
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tokens.AccessToken != "access-2" || tokens.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected refreshed tokens %+v", tokens)
	}
	recorded, _ := fake.Last(authHost, "/token")
	if recorded.Form().Get("grant_type") != "refresh_token" {
		t.Fatalf("expected refresh grant, got %q", recorded.Body)
	}
}

func TestGmail_FetchTicketsMapsUnreadToOpen(t *testing.T) {
	fake := devkit.NewFakeHTTP(
		devkit.Route{
			Method: http.MethodGet,
			Host:   apiHost,
			Path:   apiPrefix + "/messages",
			Body:   `{"messages":[{"id":"m1","threadId":"t1"},{"id":"m2","threadId":"t2"}],"resultSizeEstimate":2}`,
		},
		devkit.Route{
			Method: http.MethodGet,
			Host:   apiHost,
			Path:   apiPrefix + "/messages/m1",
			Body: `{"id":"m1","threadId":"t1","labelIds":["INBOX","UNREAD"],"snippet":"My order is late","internalDate":"1769940000000",
				"payload":{"headers":[{"name":"Subject","value":"Where is my order?"},{"name":"From","value":"Jane Roe <jane@example.test>"}]}}`,
		},
		devkit.Route{
			Method: http.MethodGet,
			Host:   apiHost,
			Path:   apiPrefix + "/messages/m2",
			Body:   `{"id":"m2","threadId":"t2","labelIds":["INBOX"],"snippet":"Thanks!","internalDate":"1769943600000","payload":{"headers":[{"name":"From","value":"bob@example.test"}]}}`,
		},
	)
	platform := newPlatform(t, fake)

	tickets, err := platform.FetchTickets(context.Background(), core.FetchTicketsRequest{
		Credential: core.PlatformCredential{AccessToken: "access-1"},
		Limit:      10,
	})
	if err != nil {
		t.Fatalf("fetch tickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
	first, second := tickets[0], tickets[1]
	if first.Status != core.TicketStatusOpen || second.Status != core.TicketStatusClosed {
		t.Fatalf("unexpected statuses %q %q", first.Status, second.Status)
	}
	if first.Summary != "Where is my order?" || first.CustomerID != "jane@example.test" || first.Thread != "My order is late" {
		t.Fatalf("unexpected first ticket %+v", first)
	}
	if !first.CreatedDate.Equal(time.UnixMilli(1769940000000).UTC()) {
		t.Fatalf("expected internal date as created date, got %v", first.CreatedDate)
	}
	if second.ResolvedDate == nil || second.CustomerID != "bob@example.test" {
		t.Fatalf("unexpected second ticket %+v", second)
	}
	if !second.ResolvedDate.Equal(time.UnixMilli(1769943600000).UTC()) {
		t.Fatalf("expected read message resolved at its internal date, got %v", second.ResolvedDate)
	}

	listed, _ := fake.Last(apiHost, apiPrefix+"/messages")
	if listed.URL.Query().Get("maxResults") != "10" || listed.URL.Query().Get("q") != DefaultQuery {
		t.Fatalf("unexpected list query %q", listed.URL.RawQuery)
	}
	if listed.Header.Get("Authorization") != "Bearer access-1" {
		t.Fatalf("expected bearer header, got %q", listed.Header.Get("Authorization"))
	}
}

func TestMessageTicketResolvedDate(t *testing.T) {
	received := time.UnixMilli(1769943600000).UTC()
	cases := []struct {
		name    string
		message *gmailapi.Message
		want    *time.Time
	}{
		{
			name:    "read message uses internal date",
			message: &gmailapi.Message{Id: "m1", LabelIds: []string{"INBOX"}, InternalDate: 1769943600000},
			want:    &received,
		},
		{
			name:    "read message without internal date falls back to fetch time",
			message: &gmailapi.Message{Id: "m2", LabelIds: []string{"INBOX"}},
			want:    &fixedNow,
		},
		{
			name:    "unread message stays unresolved",
			message: &gmailapi.Message{Id: "m3", LabelIds: []string{"UNREAD"}, InternalDate: 1769943600000},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := messageTicket(tc.message, fixedNow)
			switch {
			case tc.want == nil && ticket.ResolvedDate != nil:
				t.Fatalf("expected no resolved date, got %v", ticket.ResolvedDate)
			case tc.want != nil && (ticket.ResolvedDate == nil || !ticket.ResolvedDate.Equal(*tc.want)):
				t.Fatalf("expected resolved date %v, got %v", *tc.want, ticket.ResolvedDate)
			}
		})
	}
}

func TestGmail_FetchTicketsUnauthorized(t *testing.T) {
	fake := devkit.NewFakeHTTP(devkit.Route{
		Method:     http.MethodGet,
		Host:       apiHost,
		Path:       apiPrefix + "/messages",
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error":{"code":401,"message":"Request had invalid authentication credentials.","status":"UNAUTHENTICATED"}}`,
	})

	_, err := newPlatform(t, fake).FetchTickets(context.Background(), core.FetchTicketsRequest{
		Credential: core.PlatformCredential{AccessToken: "access-1"},
	})
	var statusErr *transport.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 status error, got %v", err)
	}
}
