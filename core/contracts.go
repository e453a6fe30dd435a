package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type BeginAuthRequest struct {
	ProfileID   string
	State       string
	RedirectURI string
	Scopes      []string
	Fields      map[string]string
}

type BeginAuthResponse struct {
	URL         string
	State       string
	RedirectURI string
	Scopes      []string
}

type ExchangeRequest struct {
	Code        string
	RedirectURI string
	Fields      map[string]string
}

// TokenSet is the normalized result of a token or refresh grant.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scopes       []string
	ExpiresAt    *time.Time
	Fields       map[string]string
	Raw          map[string]any
}

type FetchTicketsRequest struct {
	Credential PlatformCredential
	Limit      int
}

// Platform is a helpdesk integration: an OAuth authorization-code client plus
// a ticket listing call against the platform API.
type Platform interface {
	Type() PlatformType
	BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)
	ExchangeCode(ctx context.Context, req ExchangeRequest) (TokenSet, error)
	Refresh(ctx context.Context, credential PlatformCredential) (TokenSet, error)
	FetchTickets(ctx context.Context, req FetchTicketsRequest) ([]Ticket, error)
}

type PlatformRegistry interface {
	Register(platform Platform) error
	Get(platformType PlatformType) (Platform, bool)
	List() []Platform
}

type StateStore interface {
	Save(ctx context.Context, state OAuthState) (OAuthState, error)
	Consume(ctx context.Context, state string) (OAuthState, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type SaveCredentialInput struct {
	ProfileID      string
	PlatformType   PlatformType
	AccessToken    string
	RefreshToken   string
	TokenType      string
	Scopes         []string
	ExpiresAt      *time.Time
	Status         CredentialStatus
	PlatformFields map[string]string
}

type CredentialStore interface {
	Get(ctx context.Context, profileID string, platformType PlatformType) (PlatformCredential, error)
	Upsert(ctx context.Context, in SaveCredentialInput) (PlatformCredential, error)
	UpdateStatus(ctx context.Context, id string, status CredentialStatus) error
	TouchLastFetched(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, profileID string, platformType PlatformType) error
}

type ActivateConnectionInput struct {
	ProfileID    string
	PlatformType PlatformType
	PlatformName string
	AuthTokens   map[string]any
}

type ConnectionRegistry interface {
	Activate(ctx context.Context, in ActivateConnectionInput) (PlatformConnection, error)
	Get(ctx context.Context, id string) (PlatformConnection, error)
	FindActive(ctx context.Context, profileID string, platformType PlatformType) (PlatformConnection, error)
	ListByProfile(ctx context.Context, profileID string) ([]PlatformConnection, error)
	ListActive(ctx context.Context) ([]PlatformConnection, error)
	MarkFetched(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, profileID string, platformType PlatformType) error
}

type TicketStore interface {
	UpsertBatch(ctx context.Context, tickets []Ticket) (int, error)
	Count(ctx context.Context, connectionID string) (int, error)
	List(ctx context.Context, filter TicketFilter) (TicketPage, error)
	Summarize(ctx context.Context, profileID string) (TicketSummary, error)
}

type StoreProvider interface {
	StateStore() StateStore
	CredentialStore() CredentialStore
	ConnectionRegistry() ConnectionRegistry
	TicketStore() TicketStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// Principal is the authenticated caller resolved from a bearer token.
type Principal struct {
	ProfileID string
	Claims    map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

// SecretProvider seals values before they are persisted.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
