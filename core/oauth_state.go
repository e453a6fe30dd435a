package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultOAuthStateTTL = 10 * time.Minute

// MemoryStateStore keeps pending OAuth states in process. It backs tests and
// single instance deployments without a database.
type MemoryStateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]OAuthState
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	if ttl <= 0 {
		ttl = defaultOAuthStateTTL
	}
	return &MemoryStateStore{
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		entries: map[string]OAuthState{},
	}
}

// WithClock replaces the time source used for expiry checks.
func (s *MemoryStateStore) WithClock(now func() time.Time) *MemoryStateStore {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

func (s *MemoryStateStore) Save(_ context.Context, record OAuthState) (OAuthState, error) {
	if s == nil {
		return OAuthState{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return OAuthState{}, fmt.Errorf("core: oauth state is required")
	}

	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = state
	}
	record.State = state

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[state]; exists {
		return OAuthState{}, fmt.Errorf("core: oauth state already exists")
	}
	s.entries[state] = cloneOAuthState(record)
	return cloneOAuthState(record), nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (OAuthState, error) {
	if s == nil {
		return OAuthState{}, fmt.Errorf("core: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return OAuthState{}, ErrOAuthStateNotFound
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return OAuthState{}, ErrOAuthStateNotFound
	}
	if record.Expired(s.now()) {
		return OAuthState{}, ErrOAuthStateExpired
	}
	return cloneOAuthState(record), nil
}

func (s *MemoryStateStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("core: oauth state store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for key, record := range s.entries {
		if record.Expired(now) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged, nil
}

func generateOAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func cloneOAuthState(record OAuthState) OAuthState {
	cloned := record
	cloned.Metadata = copyAnyMap(record.Metadata)
	return cloned
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
