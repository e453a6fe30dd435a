package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// StateStore persists pending OAuth states so a callback can be served by any
// instance. Consume deletes the row in the same transaction that reads it.
type StateStore struct {
	db   *bun.DB
	repo repository.Repository[*oauthStateRecord]
	ttl  time.Duration
	now  func() time.Time
}

func NewStateStore(db *bun.DB, ttl time.Duration) (*StateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*oauthStateRecord](db, oauthStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid oauth state repository wiring: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StateStore{
		db:   db,
		repo: repo,
		ttl:  ttl,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock replaces the time source used for expiry checks.
func (s *StateStore) WithClock(now func() time.Time) *StateStore {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

func (s *StateStore) Save(ctx context.Context, state core.OAuthState) (core.OAuthState, error) {
	if s == nil || s.repo == nil {
		return core.OAuthState{}, fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	if strings.TrimSpace(state.State) == "" {
		return core.OAuthState{}, fmt.Errorf("sqlstore: oauth state is required")
	}
	now := s.now()
	record := newOAuthStateRecord(state, now)
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return core.OAuthState{}, fmt.Errorf("sqlstore: oauth state already exists")
		}
		return core.OAuthState{}, err
	}
	return created.toDomain(), nil
}

func (s *StateStore) Consume(ctx context.Context, state string) (core.OAuthState, error) {
	if s == nil || s.db == nil {
		return core.OAuthState{}, fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.OAuthState{}, core.ErrOAuthStateNotFound
	}

	var consumed core.OAuthState
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &oauthStateRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.ErrOAuthStateNotFound
			}
			return err
		}

		res, err := tx.NewDelete().
			Model((*oauthStateRecord)(nil)).
			Where("id = ?", record.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, affErr := res.RowsAffected(); affErr == nil && affected == 0 {
			// Another callback consumed the same state first.
			return core.ErrOAuthStateNotFound
		}
		consumed = record.toDomain()
		return nil
	})
	if err != nil {
		return core.OAuthState{}, err
	}
	if consumed.Expired(s.now()) {
		return core.OAuthState{}, core.ErrOAuthStateExpired
	}
	return consumed, nil
}

func (s *StateStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: oauth state store is not configured")
	}
	res, err := s.db.NewDelete().
		Model((*oauthStateRecord)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
