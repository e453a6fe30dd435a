package core

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"
)

type stubPlatform struct {
	platformType PlatformType

	mu            sync.Mutex
	exchangeCalls int
	refreshCalls  int
	fetchCalls    int
	tokens        TokenSet
	refreshTokens TokenSet
	exchangeErr   error
	refreshErr    error
	fetchErr      error
	tickets       []Ticket
	lastFetch     FetchTicketsRequest
}

func newStubPlatform(platformType PlatformType) *stubPlatform {
	return &stubPlatform{
		platformType: platformType,
		tokens: TokenSet{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "bearer",
			Scopes:       []string{"tickets:read"},
		},
	}
}

func (p *stubPlatform) Type() PlatformType { return p.platformType }

func (p *stubPlatform) BeginAuth(_ context.Context, req BeginAuthRequest) (BeginAuthResponse, error) {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", "client-id")
	query.Set("redirect_uri", req.RedirectURI)
	query.Set("scope", "tickets:read")
	query.Set("state", req.State)
	return BeginAuthResponse{
		URL:         "https://auth.example.test/authorize?" + query.Encode(),
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

func (p *stubPlatform) ExchangeCode(_ context.Context, _ ExchangeRequest) (TokenSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCalls++
	if p.exchangeErr != nil {
		return TokenSet{}, p.exchangeErr
	}
	return p.tokens, nil
}

func (p *stubPlatform) Refresh(_ context.Context, _ PlatformCredential) (TokenSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls++
	if p.refreshErr != nil {
		return TokenSet{}, p.refreshErr
	}
	return p.refreshTokens, nil
}

func (p *stubPlatform) FetchTickets(_ context.Context, req FetchTicketsRequest) ([]Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	p.lastFetch = req
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return append([]Ticket(nil), p.tickets...), nil
}

type statusError struct {
	status int
}

func (e statusError) Error() string       { return fmt.Sprintf("upstream status %d", e.status) }
func (e statusError) HTTPStatusCode() int { return e.status }

type memoryCredentialStore struct {
	mu      sync.Mutex
	nextID  int
	entries map[string]PlatformCredential
	saveErr error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{entries: map[string]PlatformCredential{}}
}

func credentialKey(profileID string, platformType PlatformType) string {
	return profileID + "|" + string(platformType)
}

func (s *memoryCredentialStore) Get(_ context.Context, profileID string, platformType PlatformType) (PlatformCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credential, ok := s.entries[credentialKey(profileID, platformType)]
	if !ok {
		return PlatformCredential{}, ErrCredentialNotFound
	}
	return credential, nil
}

func (s *memoryCredentialStore) Upsert(_ context.Context, in SaveCredentialInput) (PlatformCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return PlatformCredential{}, s.saveErr
	}
	key := credentialKey(in.ProfileID, in.PlatformType)
	existing, ok := s.entries[key]
	if !ok {
		s.nextID++
		existing = PlatformCredential{ID: fmt.Sprintf("cred-%d", s.nextID), CreatedAt: time.Now().UTC()}
	}
	existing.ProfileID = in.ProfileID
	existing.PlatformType = in.PlatformType
	existing.AccessToken = in.AccessToken
	existing.RefreshToken = in.RefreshToken
	existing.TokenType = in.TokenType
	existing.Scopes = in.Scopes
	existing.ExpiresAt = in.ExpiresAt
	existing.Status = in.Status
	existing.PlatformFields = copyStringMap(in.PlatformFields)
	existing.UpdatedAt = time.Now().UTC()
	s.entries[key] = existing
	return existing, nil
}

func (s *memoryCredentialStore) UpdateStatus(_ context.Context, id string, status CredentialStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, credential := range s.entries {
		if credential.ID == id {
			credential.Status = status
			s.entries[key] = credential
			return nil
		}
	}
	return ErrCredentialNotFound
}

func (s *memoryCredentialStore) TouchLastFetched(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, credential := range s.entries {
		if credential.ID == id {
			stamp := at
			credential.LastFetchedAt = &stamp
			s.entries[key] = credential
			return nil
		}
	}
	return ErrCredentialNotFound
}

func (s *memoryCredentialStore) Delete(_ context.Context, profileID string, platformType PlatformType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := credentialKey(profileID, platformType)
	if _, ok := s.entries[key]; !ok {
		return ErrCredentialNotFound
	}
	delete(s.entries, key)
	return nil
}

type memoryConnectionRegistry struct {
	mu      sync.Mutex
	nextID  int
	entries map[string]PlatformConnection
}

func newMemoryConnectionRegistry() *memoryConnectionRegistry {
	return &memoryConnectionRegistry{entries: map[string]PlatformConnection{}}
}

func (r *memoryConnectionRegistry) Activate(_ context.Context, in ActivateConnectionInput) (PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, connection := range r.entries {
		if connection.ProfileID == in.ProfileID && connection.PlatformType == in.PlatformType {
			connection.IsActive = true
			connection.AuthTokens = copyAnyMap(in.AuthTokens)
			r.entries[id] = connection
			return connection, nil
		}
	}
	r.nextID++
	connection := PlatformConnection{
		ID:           fmt.Sprintf("conn-%d", r.nextID),
		ProfileID:    in.ProfileID,
		PlatformType: in.PlatformType,
		PlatformName: in.PlatformName,
		AuthTokens:   copyAnyMap(in.AuthTokens),
		IsActive:     true,
	}
	r.entries[connection.ID] = connection
	return connection, nil
}

func (r *memoryConnectionRegistry) Get(_ context.Context, id string) (PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	connection, ok := r.entries[id]
	if !ok {
		return PlatformConnection{}, ErrConnectionNotFound
	}
	return connection, nil
}

func (r *memoryConnectionRegistry) FindActive(_ context.Context, profileID string, platformType PlatformType) (PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, connection := range r.entries {
		if connection.ProfileID == profileID && connection.PlatformType == platformType && connection.IsActive {
			return connection, nil
		}
	}
	return PlatformConnection{}, ErrConnectionNotFound
}

func (r *memoryConnectionRegistry) ListByProfile(_ context.Context, profileID string) ([]PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []PlatformConnection{}
	for _, connection := range r.entries {
		if connection.ProfileID == profileID {
			out = append(out, connection)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryConnectionRegistry) ListActive(_ context.Context) ([]PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []PlatformConnection{}
	for _, connection := range r.entries {
		if connection.IsActive {
			out = append(out, connection)
		}
	}
	return out, nil
}

func (r *memoryConnectionRegistry) MarkFetched(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	connection, ok := r.entries[id]
	if !ok {
		return ErrConnectionNotFound
	}
	stamp := at
	connection.LastFetchedAt = &stamp
	r.entries[id] = connection
	return nil
}

func (r *memoryConnectionRegistry) Deactivate(_ context.Context, profileID string, platformType PlatformType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, connection := range r.entries {
		if connection.ProfileID == profileID && connection.PlatformType == platformType {
			connection.IsActive = false
			r.entries[id] = connection
			return nil
		}
	}
	return ErrConnectionNotFound
}

type memoryTicketStore struct {
	mu        sync.Mutex
	rows      map[string]Ticket
	batches   int
	upsertErr error
}

func newMemoryTicketStore() *memoryTicketStore {
	return &memoryTicketStore{rows: map[string]Ticket{}}
}

func (s *memoryTicketStore) UpsertBatch(_ context.Context, tickets []Ticket) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	s.batches++
	for _, ticket := range tickets {
		s.rows[ticket.PlatformConnectionID+"|"+ticket.ExternalTicketID] = ticket
	}
	return len(tickets), nil
}

func (s *memoryTicketStore) Count(_ context.Context, connectionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ticket := range s.rows {
		if connectionID == "" || ticket.PlatformConnectionID == connectionID {
			count++
		}
	}
	return count, nil
}

func (s *memoryTicketStore) List(_ context.Context, filter TicketFilter) (TicketPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := TicketPage{}
	for _, ticket := range s.rows {
		if ticket.ProfileID == filter.ProfileID {
			page.Items = append(page.Items, ticket)
		}
	}
	page.Total = len(page.Items)
	return page, nil
}

func (s *memoryTicketStore) Summarize(_ context.Context, profileID string) (TicketSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := TicketSummary{ProfileID: profileID, ByStatus: map[string]int{}, ByPlatform: map[PlatformType]int{}}
	for _, ticket := range s.rows {
		if ticket.ProfileID != profileID {
			continue
		}
		summary.Total++
		summary.ByStatus[ticket.Status]++
	}
	return summary, nil
}

type serviceFixture struct {
	service     *Service
	platform    *stubPlatform
	states      *MemoryStateStore
	credentials *memoryCredentialStore
	connections *memoryConnectionRegistry
	tickets     *memoryTicketStore
	now         time.Time
}

func newServiceFixture(t *testing.T, platformType PlatformType, opts ...Option) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		platform:    newStubPlatform(platformType),
		credentials: newMemoryCredentialStore(),
		connections: newMemoryConnectionRegistry(),
		tickets:     newMemoryTicketStore(),
		now:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fixture.states = NewMemoryStateStore(time.Minute).WithClock(func() time.Time { return fixture.now })
	registry := NewPlatformRegistry()
	if err := registry.Register(fixture.platform); err != nil {
		t.Fatalf("register platform: %v", err)
	}
	cfg := DefaultConfig()
	cfg.OAuth.CallbackBaseURL = "https://api.example.test"

	base := []Option{
		WithPlatformRegistry(registry),
		WithStateStore(fixture.states),
		WithCredentialStore(fixture.credentials),
		WithConnectionRegistry(fixture.connections),
		WithTicketStore(fixture.tickets),
		WithClock(func() time.Time { return fixture.now }),
	}
	service, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.service = service
	return fixture
}
