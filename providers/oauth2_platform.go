package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/transport"
	"golang.org/x/oauth2"
)

const defaultTokenRequestTimeout = 30 * time.Second

// Account placeholders accepted in authorize, token and API URLs.
const (
	FieldSubdomain = "subdomain"
	FieldDomain    = "domain"
	FieldOrgID     = "org_id"
	FieldEmail     = "email"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([a-z_]+)\}`)
	hostLabelPattern   = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

// Token response fields kept on the token set. Secrets are never copied.
var tokenMetadataKeys = []string{"token_type", "scope", "expires_in", "api_domain"}

// OAuth2Config describes one platform's authorization-code endpoints. URLs may
// reference account fields as {subdomain} or {domain}; values come from the
// connect request and are persisted with the credential for later refreshes.
type OAuth2Config struct {
	Type                core.PlatformType
	AuthURL             string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientSecretInBody  bool
	Scopes              []string
	ScopeSeparator      string
	AuthParams          map[string]string
	TokenTTL            time.Duration
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          transport.HTTPDoer
}

// OAuth2Platform implements the token half of core.Platform on top of
// oauth2.Config. Platform packages embed it and add FetchTickets through REST.
type OAuth2Platform struct {
	cfg        OAuth2Config
	httpClient *http.Client
	rest       *transport.RESTAdapter
}

func NewOAuth2Platform(cfg OAuth2Config) (*OAuth2Platform, error) {
	if _, err := core.ParsePlatformType(cfg.Type.String()); err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("providers: auth url is required for platform %q", cfg.Type)
	}
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("providers: token url is required for platform %q", cfg.Type)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("providers: client id is required for platform %q", cfg.Type)
	}
	cfg.Scopes = normalizeScopes(cfg.Scopes)
	if cfg.ScopeSeparator == "" {
		cfg.ScopeSeparator = " "
	}
	cfg.AuthParams = copyStrings(cfg.AuthParams)
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}
	doer := cfg.HTTPClient
	if doer == nil {
		doer = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Platform{
		cfg:        cfg,
		httpClient: asHTTPClient(doer),
		rest:       transport.NewRESTAdapter(doer),
	}, nil
}

func (p *OAuth2Platform) Type() core.PlatformType {
	if p == nil {
		return ""
	}
	return p.cfg.Type
}

func (p *OAuth2Platform) Scopes() []string {
	if p == nil {
		return []string{}
	}
	return append([]string(nil), p.cfg.Scopes...)
}

// REST exposes the adapter platform packages use for ticket calls.
func (p *OAuth2Platform) REST() *transport.RESTAdapter {
	if p == nil {
		return nil
	}
	return p.rest
}

func (p *OAuth2Platform) Now() time.Time {
	if p == nil || p.cfg.Now == nil {
		return time.Now().UTC()
	}
	return p.cfg.Now().UTC()
}

func (p *OAuth2Platform) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if p == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth2 platform is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return core.BeginAuthResponse{}, core.BadInputError("oauth state is required")
	}
	cfg, err := p.oauthConfig(req.Fields, req.RedirectURI, true)
	if err != nil {
		return core.BeginAuthResponse{}, err
	}
	scopes := normalizeScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = append([]string(nil), p.cfg.Scopes...)
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(p.cfg.AuthParams)+1)
	if len(scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(scopes, p.cfg.ScopeSeparator)))
	}
	for key, value := range p.cfg.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}

	return core.BeginAuthResponse{
		URL:         cfg.AuthCodeURL(state, opts...),
		State:       state,
		RedirectURI: cfg.RedirectURL,
		Scopes:      scopes,
	}, nil
}

func (p *OAuth2Platform) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.TokenSet, error) {
	if p == nil {
		return core.TokenSet{}, fmt.Errorf("providers: oauth2 platform is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenSet{}, core.BadInputError("authorization code is required")
	}
	cfg, err := p.oauthConfig(req.Fields, req.RedirectURI, false)
	if err != nil {
		return core.TokenSet{}, err
	}

	var opts []oauth2.AuthCodeOption
	if len(p.cfg.Scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(p.cfg.Scopes, p.cfg.ScopeSeparator)))
	}

	ctx, cancel := p.tokenContext(ctx)
	defer cancel()
	token, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return core.TokenSet{}, tokenError(err)
	}
	return p.tokenSet(token, "", p.cfg.Scopes, req.Fields), nil
}

// Refresh runs the refresh grant through an oauth2 token source seeded with
// the stored refresh token only, so the source always asks for a new token.
func (p *OAuth2Platform) Refresh(ctx context.Context, credential core.PlatformCredential) (core.TokenSet, error) {
	if p == nil {
		return core.TokenSet{}, fmt.Errorf("providers: oauth2 platform is nil")
	}
	refreshToken := strings.TrimSpace(credential.RefreshToken)
	if refreshToken == "" {
		return core.TokenSet{}, core.BadInputError("refresh token is required")
	}
	cfg, err := p.oauthConfig(credential.PlatformFields, "", false)
	if err != nil {
		return core.TokenSet{}, err
	}

	ctx, cancel := p.tokenContext(ctx)
	defer cancel()
	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return core.TokenSet{}, tokenError(err)
	}
	scopes := credential.Scopes
	if len(scopes) == 0 {
		scopes = p.cfg.Scopes
	}
	return p.tokenSet(token, refreshToken, scopes, nil), nil
}

// oauthConfig builds the oauth2 client for one request. Only the endpoint the
// request uses is expanded, so a token call never needs authorize-only fields.
func (p *OAuth2Platform) oauthConfig(fields map[string]string, redirectURI string, authorize bool) (oauth2.Config, error) {
	endpoint := oauth2.Endpoint{AuthStyle: oauth2.AuthStyleInHeader}
	if p.cfg.ClientSecretInBody {
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	var err error
	if authorize {
		endpoint.AuthURL, err = ExpandURL(p.cfg.AuthURL, fields)
	} else {
		endpoint.TokenURL, err = ExpandURL(p.cfg.TokenURL, fields)
	}
	if err != nil {
		return oauth2.Config{}, err
	}
	return oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  strings.TrimSpace(redirectURI),
		Endpoint:     endpoint,
	}, nil
}

func (p *OAuth2Platform) tokenContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return context.WithTimeout(ctx, p.cfg.TokenRequestTimeout)
}

func (p *OAuth2Platform) tokenSet(token *oauth2.Token, priorRefresh string, requested []string, fields map[string]string) core.TokenSet {
	granted := normalizeScopes(parseScopeList(readAnyString(token.Extra("scope"))))
	if len(granted) == 0 {
		granted = append([]string(nil), requested...)
	}
	refreshToken := strings.TrimSpace(token.RefreshToken)
	if refreshToken == "" {
		refreshToken = priorRefresh
	}
	return core.TokenSet{
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: refreshToken,
		TokenType:    normalizeTokenType(token.TokenType),
		Scopes:       granted,
		ExpiresAt:    p.resolveExpiresAt(p.Now(), tokenExpiresIn(token)),
		Fields:       accountFields(fields),
		Raw:          tokenMetadata(token),
	}
}

// resolveExpiresAt uses the platform clock rather than oauth2's Expiry so the
// stored expiry follows the configured time source.
func (p *OAuth2Platform) resolveExpiresAt(now time.Time, expiresIn int64) *time.Time {
	ttl := p.cfg.TokenTTL
	if expiresIn > 0 {
		ttl = time.Duration(expiresIn) * time.Second
	}
	if ttl <= 0 {
		return nil
	}
	expiresAt := now.Add(ttl)
	return &expiresAt
}

func tokenExpiresIn(token *oauth2.Token) int64 {
	if token.ExpiresIn > 0 {
		return token.ExpiresIn
	}
	return readAnyInt64(token.Extra("expires_in"))
}

func tokenMetadata(token *oauth2.Token) map[string]any {
	out := map[string]any{}
	for _, key := range tokenMetadataKeys {
		if value := token.Extra(key); value != nil && value != "" {
			out[key] = value
		}
	}
	return out
}

// tokenError maps oauth2 failures onto transport errors. A non-2xx token
// response becomes a *transport.StatusError so core classifies it like any
// other upstream status.
func tokenError(err error) error {
	var retrieve *oauth2.RetrieveError
	if !errors.As(err, &retrieve) {
		return fmt.Errorf("providers: token request: %w", err)
	}
	detail := strings.TrimSpace(retrieve.ErrorDescription)
	if detail == "" {
		detail = transport.DescribeErrorBody(retrieve.Body)
	}
	if detail == "" {
		detail = strings.TrimSpace(retrieve.ErrorCode)
	}
	if retrieve.Response != nil && (retrieve.Response.StatusCode < 200 || retrieve.Response.StatusCode > 299) {
		return &transport.StatusError{
			StatusCode: retrieve.Response.StatusCode,
			Detail:     detail,
			Body:       append([]byte(nil), retrieve.Body...),
		}
	}
	if code := strings.TrimSpace(retrieve.ErrorCode); code != "" && detail != code {
		detail = code + ": " + detail
	}
	return fmt.Errorf("providers: token endpoint error: %s", detail)
}

// asHTTPClient adapts a transport doer for the oauth2 client context key.
func asHTTPClient(doer transport.HTTPDoer) *http.Client {
	if client, ok := doer.(*http.Client); ok {
		return client
	}
	return &http.Client{Transport: doerTransport{doer: doer}}
}

type doerTransport struct {
	doer transport.HTTPDoer
}

func (t doerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.doer.Do(req)
}

// ExpandURL substitutes {field} placeholders from fields. Values must be a
// single DNS label so an account hint cannot redirect the request to another host.
func ExpandURL(template string, fields map[string]string) (string, error) {
	var missing []string
	expanded := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.Trim(match, "{}")
		value := strings.ToLower(strings.TrimSpace(fields[name]))
		if !hostLabelPattern.MatchString(value) {
			missing = append(missing, name)
			return match
		}
		return value
	})
	if len(missing) > 0 {
		errs := make([]goerrors.FieldError, 0, len(missing))
		for _, name := range missing {
			errs = append(errs, goerrors.FieldError{Field: name, Message: "must be a valid account name"})
		}
		return "", goerrors.NewValidation(fmt.Sprintf("%s is required", strings.Join(missing, ", ")), errs...).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ServiceErrorBadInput)
	}
	return expanded, nil
}

// accountFields keeps the placeholder values a later refresh or ticket call
// will need again.
func accountFields(fields map[string]string) map[string]string {
	out := map[string]string{}
	for _, key := range []string{FieldSubdomain, FieldDomain} {
		if value := strings.ToLower(strings.TrimSpace(fields[key])); value != "" {
			out[key] = value
		}
	}
	return out
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

// normalizeScopes trims and dedupes, keeping order. Scope names are case
// sensitive on Zoho so they are not lowered.
func normalizeScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	seen := map[string]struct{}{}
	for _, value := range input {
		normalized := strings.TrimSpace(value)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		values = append(values, normalized)
	}
	return values
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return strings.TrimSpace(typed.String())
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func copyStrings(input map[string]string) map[string]string {
	out := make(map[string]string, len(input))
	for key, value := range input {
		if strings.TrimSpace(key) == "" {
			continue
		}
		out[strings.TrimSpace(key)] = value
	}
	return out
}
