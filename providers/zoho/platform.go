package zoho

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/providers"
	"github.com/goliatone/go-helpdesk/transport"
)

const (
	AuthURL          = "https://accounts.zoho.com/oauth/v2/auth"
	TokenURL         = "https://accounts.zoho.com/oauth/v2/token"
	APIBaseURL       = "https://desk.zoho.com/api/v1"
	ScopeTicketsRead = "Desk.tickets.READ"
	ScopeBasicRead   = "Desk.basic.READ"
)

var Statuses = providers.StatusTable{
	"open":      core.TicketStatusOpen,
	"on hold":   core.TicketStatusInProgress,
	"escalated": core.TicketStatusInProgress,
	"closed":    core.TicketStatusClosed,
}

type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
	HTTPClient   transport.HTTPDoer
	Now          func() time.Time
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		APIBaseURL: APIBaseURL,
		Scopes:     []string{ScopeTicketsRead, ScopeBasicRead},
	}
}

// Platform talks to Zoho Desk. Every API call carries the organization id
// resolved once after the code exchange.
type Platform struct {
	*providers.OAuth2Platform
	apiBaseURL string
}

func New(cfg Config) (*Platform, error) {
	defaults := DefaultConfig()
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaults.APIBaseURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	base, err := providers.NewOAuth2Platform(providers.OAuth2Config{
		Type:               core.PlatformZoho,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		Scopes:             cfg.Scopes,
		ScopeSeparator:     ",",
		AuthParams:         map[string]string{"access_type": "offline"},
		HTTPClient:         cfg.HTTPClient,
		Now:                cfg.Now,
	})
	if err != nil {
		return nil, err
	}
	return &Platform{
		OAuth2Platform: base,
		apiBaseURL:     strings.TrimRight(cfg.APIBaseURL, "/"),
	}, nil
}

func (p *Platform) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.TokenSet, error) {
	tokens, err := p.OAuth2Platform.ExchangeCode(ctx, req)
	if err != nil {
		return core.TokenSet{}, err
	}
	orgID, err := p.resolveOrganization(ctx, tokens.AccessToken)
	if err != nil {
		return core.TokenSet{}, err
	}
	if tokens.Fields == nil {
		tokens.Fields = map[string]string{}
	}
	tokens.Fields[providers.FieldOrgID] = orgID
	return tokens, nil
}

type organizationList struct {
	Data []struct {
		ID          flexibleID `json:"id"`
		CompanyName string     `json:"companyName"`
	} `json:"data"`
}

func (p *Platform) resolveOrganization(ctx context.Context, accessToken string) (string, error) {
	var payload organizationList
	if err := p.REST().GetJSON(ctx, transport.Request{
		URL:     p.apiBaseURL + "/organizations",
		Headers: authHeaders(accessToken, ""),
	}, &payload); err != nil {
		return "", err
	}
	for _, org := range payload.Data {
		if id := string(org.ID); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("providers/zoho: no desk organization is available for this account")
}

type ticketList struct {
	Data []ticket `json:"data"`
}

type ticket struct {
	ID           flexibleID `json:"id"`
	TicketNumber string     `json:"ticketNumber"`
	Subject      string     `json:"subject"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	ContactID    flexibleID `json:"contactId"`
	AssigneeID   flexibleID `json:"assigneeId"`
	CreatedTime  string     `json:"createdTime"`
	ClosedTime   string     `json:"closedTime"`
}

func (p *Platform) FetchTickets(ctx context.Context, req core.FetchTicketsRequest) ([]core.Ticket, error) {
	if p == nil || p.OAuth2Platform == nil {
		return nil, fmt.Errorf("providers/zoho: platform is nil")
	}
	orgID := strings.TrimSpace(req.Credential.PlatformFields[providers.FieldOrgID])
	if orgID == "" {
		return nil, core.BadInputError("Zoho Desk organization id is missing; reconnect the account")
	}
	query := map[string]string{"sortBy": "-createdTime"}
	if req.Limit > 0 {
		query["limit"] = strconv.Itoa(req.Limit)
	}

	var payload ticketList
	if err := p.REST().GetJSON(ctx, transport.Request{
		URL:     p.apiBaseURL + "/tickets",
		Query:   query,
		Headers: authHeaders(req.Credential.AccessToken, orgID),
	}, &payload); err != nil {
		return nil, err
	}

	fetchedAt := p.Now()
	out := make([]core.Ticket, 0, len(payload.Data))
	for _, item := range payload.Data {
		status := Statuses.Normalize(item.Status)
		out = append(out, core.Ticket{
			ExternalTicketID: string(item.ID),
			CreatedDate:      providers.ParseTimestamp(item.CreatedTime),
			ResolvedDate:     providers.ResolvedAt(status, providers.ParseTimestamp(item.ClosedTime), fetchedAt),
			Status:           status,
			Thread:           strings.TrimSpace(item.Description),
			Summary:          strings.TrimSpace(item.Subject),
			CustomerID:       string(item.ContactID),
			AgentName:        string(item.AssigneeID),
			LastFetchedAt:    fetchedAt,
		})
	}
	return out, nil
}

func authHeaders(accessToken, orgID string) map[string]string {
	headers := map[string]string{"Authorization": "Zoho-oauthtoken " + strings.TrimSpace(accessToken)}
	if orgID != "" {
		headers["orgId"] = orgID
	}
	return headers
}

// flexibleID accepts ids encoded as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(text))
		return nil
	}
	*f = flexibleID(trimmed)
	return nil
}

var _ core.Platform = (*Platform)(nil)
