package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/providers"
	"github.com/goliatone/go-helpdesk/transport"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	DefaultQuery = "in:inbox"
	labelUnread  = "UNREAD"
)

type Config struct {
	ClientID     string
	ClientSecret string
	Endpoint     oauth2.Endpoint
	Scopes       []string
	// APIEndpoint overrides the Gmail API base URL.
	APIEndpoint string
	Query       string
	HTTPClient  *http.Client
	Now         func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Endpoint: google.Endpoint,
		Scopes:   []string{gmailapi.GmailReadonlyScope},
		Query:    DefaultQuery,
	}
}

// Platform treats each inbox message as a ticket. Auth runs through
// golang.org/x/oauth2 against Google's endpoint.
type Platform struct {
	oauth       oauth2.Config
	apiEndpoint string
	query       string
	httpClient  *http.Client
	now         func() time.Time
}

func New(cfg Config) (*Platform, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers/gmail: client id is required")
	}
	if cfg.Endpoint.AuthURL == "" || cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = defaults.Endpoint
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}
	if strings.TrimSpace(cfg.Query) == "" {
		cfg.Query = defaults.Query
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Platform{
		oauth: oauth2.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			Endpoint:     cfg.Endpoint,
			Scopes:       append([]string(nil), cfg.Scopes...),
		},
		apiEndpoint: strings.TrimSpace(cfg.APIEndpoint),
		query:       cfg.Query,
		httpClient:  cfg.HTTPClient,
		now:         cfg.Now,
	}, nil
}

func (*Platform) Type() core.PlatformType {
	return core.PlatformGmail
}

func (p *Platform) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	state := strings.TrimSpace(req.State)
	if state == "" {
		return core.BeginAuthResponse{}, core.BadInputError("oauth state is required")
	}
	cfg := p.oauthConfig(req.RedirectURI)
	if len(req.Scopes) > 0 {
		cfg.Scopes = append([]string(nil), req.Scopes...)
	}
	return core.BeginAuthResponse{
		URL:         cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce),
		State:       state,
		RedirectURI: cfg.RedirectURL,
		Scopes:      append([]string(nil), cfg.Scopes...),
	}, nil
}

func (p *Platform) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.TokenSet, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenSet{}, core.BadInputError("authorization code is required")
	}
	cfg := p.oauthConfig(req.RedirectURI)
	token, err := cfg.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return core.TokenSet{}, upstreamError(err)
	}

	svc, err := p.service(ctx, token.AccessToken)
	if err != nil {
		return core.TokenSet{}, err
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return core.TokenSet{}, upstreamError(err)
	}

	tokens := p.tokenSet(token, "", nil)
	tokens.Fields = map[string]string{providers.FieldEmail: strings.TrimSpace(profile.EmailAddress)}
	return tokens, nil
}

func (p *Platform) Refresh(ctx context.Context, credential core.PlatformCredential) (core.TokenSet, error) {
	refreshToken := strings.TrimSpace(credential.RefreshToken)
	if refreshToken == "" {
		return core.TokenSet{}, core.BadInputError("refresh token is required")
	}
	cfg := p.oauthConfig("")
	source := cfg.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return core.TokenSet{}, upstreamError(err)
	}
	return p.tokenSet(token, refreshToken, credential.Scopes), nil
}

func (p *Platform) FetchTickets(ctx context.Context, req core.FetchTicketsRequest) ([]core.Ticket, error) {
	svc, err := p.service(ctx, req.Credential.AccessToken)
	if err != nil {
		return nil, err
	}
	call := svc.Users.Messages.List("me").Q(p.query).Context(ctx)
	if req.Limit > 0 {
		call = call.MaxResults(int64(req.Limit))
	}
	listed, err := call.Do()
	if err != nil {
		return nil, upstreamError(err)
	}

	fetchedAt := p.now().UTC()
	out := make([]core.Ticket, 0, len(listed.Messages))
	for _, ref := range listed.Messages {
		if ref == nil || ref.Id == "" {
			continue
		}
		message, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From").
			Context(ctx).
			Do()
		if err != nil {
			return nil, upstreamError(err)
		}
		out = append(out, messageTicket(message, fetchedAt))
	}
	return out, nil
}

func messageTicket(message *gmailapi.Message, fetchedAt time.Time) core.Ticket {
	status := core.TicketStatusClosed
	for _, label := range message.LabelIds {
		if label == labelUnread {
			status = core.TicketStatusOpen
			break
		}
	}
	var subject, from string
	if message.Payload != nil {
		for _, header := range message.Payload.Headers {
			switch strings.ToLower(header.Name) {
			case "subject":
				subject = header.Value
			case "from":
				from = header.Value
			}
		}
	}
	// InternalDate is the receive time in epoch milliseconds.
	var received time.Time
	if message.InternalDate > 0 {
		received = time.UnixMilli(message.InternalDate).UTC()
	}
	created := received
	if created.IsZero() {
		created = fetchedAt
	}
	return core.Ticket{
		ExternalTicketID: message.Id,
		CreatedDate:      created,
		ResolvedDate:     providers.ResolvedAt(status, received, fetchedAt),
		Status:           status,
		Thread:           strings.TrimSpace(message.Snippet),
		Summary:          strings.TrimSpace(subject),
		CustomerID:       senderAddress(from),
		LastFetchedAt:    fetchedAt,
	}
}

func senderAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if parsed, err := mail.ParseAddress(from); err == nil {
		return parsed.Address
	}
	return from
}

func (p *Platform) oauthConfig(redirectURI string) oauth2.Config {
	cfg := p.oauth
	cfg.Scopes = append([]string(nil), p.oauth.Scopes...)
	cfg.RedirectURL = strings.TrimSpace(redirectURI)
	return cfg
}

func (p *Platform) clientContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	return ctx
}

func (p *Platform) service(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(accessToken), TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(p.clientContext(ctx), source))}
	if p.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(p.apiEndpoint, "/")+"/"))
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("providers/gmail: create gmail service: %w", err)
	}
	return svc, nil
}

func (p *Platform) tokenSet(token *oauth2.Token, priorRefresh string, priorScopes []string) core.TokenSet {
	refreshToken := strings.TrimSpace(token.RefreshToken)
	if refreshToken == "" {
		refreshToken = priorRefresh
	}
	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		expiresAt = &expiry
	}
	scopes := append([]string(nil), p.oauth.Scopes...)
	if len(priorScopes) > 0 {
		scopes = append([]string(nil), priorScopes...)
	}
	if granted, ok := token.Extra("scope").(string); ok && strings.TrimSpace(granted) != "" {
		scopes = strings.Fields(granted)
	}
	return core.TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		TokenType:    strings.ToLower(token.Type()),
		Scopes:       scopes,
		ExpiresAt:    expiresAt,
	}
}

// upstreamError carries the Google status code so sync can tell a revoked
// grant from an outage.
func upstreamError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		detail := transport.DescribeErrorBody(retrieveErr.Body)
		return &transport.StatusError{
			StatusCode: retrieveErr.Response.StatusCode,
			Detail:     detail,
			Body:       append([]byte(nil), retrieveErr.Body...),
		}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &transport.StatusError{
			StatusCode: apiErr.Code,
			Detail:     strings.TrimSpace(apiErr.Message),
			Body:       []byte(apiErr.Body),
		}
	}
	return err
}

var _ core.Platform = (*Platform)(nil)
