package zendesk

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/providers"
	"github.com/goliatone/go-helpdesk/transport"
)

const (
	AuthURL    = "https://{subdomain}.zendesk.com/oauth/authorizations/new"
	TokenURL   = "https://{subdomain}.zendesk.com/oauth/tokens"
	TicketsURL = "https://{subdomain}.zendesk.com/api/v2/tickets.json"
	ScopeRead  = "tickets:read"
)

var Statuses = providers.StatusTable{
	"new":     core.TicketStatusOpen,
	"open":    core.TicketStatusOpen,
	"pending": core.TicketStatusInProgress,
	"hold":    core.TicketStatusInProgress,
	"solved":  core.TicketStatusClosed,
	"closed":  core.TicketStatusClosed,
}

type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	TicketsURL   string
	Scopes       []string
	HTTPClient   transport.HTTPDoer
	Now          func() time.Time
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		TicketsURL: TicketsURL,
		Scopes:     []string{ScopeRead},
	}
}

type Platform struct {
	*providers.OAuth2Platform
	ticketsURL string
}

func New(cfg Config) (*Platform, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.TicketsURL == "" {
		cfg.TicketsURL = defaults.TicketsURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	base, err := providers.NewOAuth2Platform(providers.OAuth2Config{
		Type:               core.PlatformZendesk,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		Scopes:             cfg.Scopes,
		HTTPClient:         cfg.HTTPClient,
		Now:                cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	return &Platform{OAuth2Platform: base, ticketsURL: cfg.TicketsURL}, nil
}

type ticketList struct {
	Tickets []ticket `json:"tickets"`
}

type ticket struct {
	ID          int64  `json:"id"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Status      string `json:"status"`
	RequesterID *int64 `json:"requester_id"`
	AssigneeID  *int64 `json:"assignee_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (p *Platform) FetchTickets(ctx context.Context, req core.FetchTicketsRequest) ([]core.Ticket, error) {
	if p == nil || p.OAuth2Platform == nil {
		return nil, fmt.Errorf("providers/zendesk: platform is nil")
	}
	endpoint, err := providers.ExpandURL(p.ticketsURL, req.Credential.PlatformFields)
	if err != nil {
		return nil, err
	}
	query := map[string]string{
		"sort_by":    "updated_at",
		"sort_order": "desc",
	}
	if req.Limit > 0 {
		query["per_page"] = strconv.Itoa(req.Limit)
	}

	var payload ticketList
	if err := p.REST().GetJSON(ctx, transport.Request{
		URL:     endpoint,
		Query:   query,
		Headers: providers.BearerHeaders(req.Credential),
	}, &payload); err != nil {
		return nil, err
	}

	fetchedAt := p.Now()
	out := make([]core.Ticket, 0, len(payload.Tickets))
	for _, item := range payload.Tickets {
		status := Statuses.Normalize(item.Status)
		out = append(out, core.Ticket{
			ExternalTicketID: strconv.FormatInt(item.ID, 10),
			CreatedDate:      providers.ParseTimestamp(item.CreatedAt),
			ResolvedDate:     providers.ResolvedAt(status, providers.ParseTimestamp(item.UpdatedAt), fetchedAt),
			Status:           status,
			Thread:           strings.TrimSpace(item.Description),
			Summary:          strings.TrimSpace(item.Subject),
			CustomerID:       optionalID(item.RequesterID),
			AgentName:        optionalID(item.AssigneeID),
			LastFetchedAt:    fetchedAt,
		})
	}
	return out, nil
}

func optionalID(value *int64) string {
	if value == nil || *value == 0 {
		return ""
	}
	return strconv.FormatInt(*value, 10)
}

var _ core.Platform = (*Platform)(nil)
