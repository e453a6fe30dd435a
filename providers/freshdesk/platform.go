package freshdesk

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
	AuthURL    = "https://{domain}.freshdesk.com/oauth/authorize"
	TokenURL   = "https://{domain}.freshdesk.com/oauth/token"
	TicketsURL = "https://{domain}.freshdesk.com/api/v2/tickets"
	ScopeRead  = "tickets:read"
)

// Statuses maps FreshDesk numeric status codes.
var Statuses = providers.StatusTable{
	"2": core.TicketStatusOpen,
	"3": core.TicketStatusInProgress,
	"4": core.TicketStatusResolved,
	"5": core.TicketStatusClosed,
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
		Type:         core.PlatformFreshdesk,
		AuthURL:      cfg.AuthURL,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		HTTPClient:   cfg.HTTPClient,
		Now:          cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	return &Platform{OAuth2Platform: base, ticketsURL: cfg.TicketsURL}, nil
}

type ticket struct {
	ID              int64  `json:"id"`
	Subject         string `json:"subject"`
	DescriptionText string `json:"description_text"`
	Status          int    `json:"status"`
	RequesterID     *int64 `json:"requester_id"`
	ResponderID     *int64 `json:"responder_id"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func (p *Platform) FetchTickets(ctx context.Context, req core.FetchTicketsRequest) ([]core.Ticket, error) {
	if p == nil || p.OAuth2Platform == nil {
		return nil, fmt.Errorf("providers/freshdesk: platform is nil")
	}
	endpoint, err := providers.ExpandURL(p.ticketsURL, req.Credential.PlatformFields)
	if err != nil {
		return nil, err
	}
	query := map[string]string{
		"order_by":   "updated_at",
		"order_type": "desc",
	}
	if req.Limit > 0 {
		query["per_page"] = strconv.Itoa(req.Limit)
	}

	var payload []ticket
	if err := p.REST().GetJSON(ctx, transport.Request{
		URL:     endpoint,
		Query:   query,
		Headers: providers.BearerHeaders(req.Credential),
	}, &payload); err != nil {
		return nil, err
	}

	fetchedAt := p.Now()
	out := make([]core.Ticket, 0, len(payload))
	for _, item := range payload {
		status := Statuses.Normalize(strconv.Itoa(item.Status))
		out = append(out, core.Ticket{
			ExternalTicketID: strconv.FormatInt(item.ID, 10),
			CreatedDate:      providers.ParseTimestamp(item.CreatedAt),
			ResolvedDate:     providers.ResolvedAt(status, providers.ParseTimestamp(item.UpdatedAt), fetchedAt),
			Status:           status,
			Thread:           strings.TrimSpace(item.DescriptionText),
			Summary:          strings.TrimSpace(item.Subject),
			CustomerID:       optionalID(item.RequesterID),
			AgentName:        optionalID(item.ResponderID),
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
