package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubConnectionRegistry struct {
	mu              sync.Mutex
	connection      core.PlatformConnection
	findCalls       int
	deactivateCalls int
	findErr         error
}

func (s *stubConnectionRegistry) Activate(_ context.Context, in core.ActivateConnectionInput) (core.PlatformConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection = core.PlatformConnection{
		ID:           "conn-2",
		ProfileID:    in.ProfileID,
		PlatformType: in.PlatformType,
		IsActive:     true,
	}
	return s.connection, nil
}

func (s *stubConnectionRegistry) Get(_ context.Context, _ string) (core.PlatformConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connection, nil
}

func (s *stubConnectionRegistry) FindActive(_ context.Context, _ string, _ core.PlatformType) (core.PlatformConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return core.PlatformConnection{}, s.findErr
	}
	return s.connection, nil
}

func (s *stubConnectionRegistry) ListByProfile(context.Context, string) ([]core.PlatformConnection, error) {
	return nil, nil
}

func (s *stubConnectionRegistry) ListActive(context.Context) ([]core.PlatformConnection, error) {
	return nil, nil
}

func (s *stubConnectionRegistry) MarkFetched(_ context.Context, _ string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connection.LastFetchedAt = &at
	return nil
}

func (s *stubConnectionRegistry) Deactivate(context.Context, string, core.PlatformType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivateCalls++
	s.connection.IsActive = false
	return nil
}

func (s *stubConnectionRegistry) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls
}

func TestActiveConnectionCacheKey(t *testing.T) {
	key, err := ActiveConnectionCacheKey(" profile/1 ", core.PlatformZendesk)
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-helpdesk::active_connection::v1::profile%2F1::zendesk" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := ActiveConnectionCacheKey("", core.PlatformZendesk); err == nil {
		t.Fatalf("expected missing profile error")
	}
}

func TestCachedConnectionRegistry_FindActiveIsCached(t *testing.T) {
	base := &stubConnectionRegistry{connection: core.PlatformConnection{ID: "conn-1", ProfileID: "p1", PlatformType: core.PlatformZendesk, IsActive: true}}
	registry, err := NewCachedConnectionRegistry(base, newTestConnectionCacheService(t))
	if err != nil {
		t.Fatalf("new cached registry: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := registry.FindActive(ctx, "p1", core.PlatformZendesk)
		if err != nil {
			t.Fatalf("find active: %v", err)
		}
		if got.ID != "conn-1" {
			t.Fatalf("expected conn-1, got %q", got.ID)
		}
	}
	if base.calls() != 1 {
		t.Fatalf("expected one base lookup, got %d", base.calls())
	}
}

func TestCachedConnectionRegistry_WritesEvict(t *testing.T) {
	base := &stubConnectionRegistry{connection: core.PlatformConnection{ID: "conn-1", ProfileID: "p1", PlatformType: core.PlatformZoho, IsActive: true}}
	registry, err := NewCachedConnectionRegistry(base, newTestConnectionCacheService(t))
	if err != nil {
		t.Fatalf("new cached registry: %v", err)
	}
	ctx := context.Background()
	if _, err := registry.FindActive(ctx, "p1", core.PlatformZoho); err != nil {
		t.Fatalf("find active: %v", err)
	}
	if err := registry.Deactivate(ctx, "p1", core.PlatformZoho); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	got, err := registry.FindActive(ctx, "p1", core.PlatformZoho)
	if err != nil {
		t.Fatalf("find active after deactivate: %v", err)
	}
	if got.IsActive {
		t.Fatalf("expected evicted entry to reflect deactivation")
	}
	if base.calls() != 2 {
		t.Fatalf("expected two base lookups, got %d", base.calls())
	}

	if _, err := registry.Activate(ctx, core.ActivateConnectionInput{ProfileID: "p1", PlatformType: core.PlatformZoho}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	got, err = registry.FindActive(ctx, "p1", core.PlatformZoho)
	if err != nil {
		t.Fatalf("find active after activate: %v", err)
	}
	if got.ID != "conn-2" || !got.IsActive {
		t.Fatalf("expected reactivated conn-2, got %+v", got)
	}
}

func TestCachedConnectionRegistry_PropagatesBaseErrors(t *testing.T) {
	base := &stubConnectionRegistry{findErr: core.ErrConnectionNotFound}
	registry, err := NewCachedConnectionRegistry(base, newTestConnectionCacheService(t))
	if err != nil {
		t.Fatalf("new cached registry: %v", err)
	}
	if _, err := registry.FindActive(context.Background(), "p1", core.PlatformGmail); !errors.Is(err, core.ErrConnectionNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func TestNewCachedConnectionRegistry_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedConnectionRegistry(nil, newTestConnectionCacheService(t)); err == nil {
		t.Fatalf("expected base registry error")
	}
	if _, err := NewCachedConnectionRegistry(&stubConnectionRegistry{}, nil); err == nil {
		t.Fatalf("expected cache service error")
	}
}

func newTestConnectionCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
