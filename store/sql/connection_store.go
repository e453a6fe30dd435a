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

// ConnectionStore is the SQL connection registry. At most one row per profile
// and platform has is_active set; the partial unique index enforces it.
type ConnectionStore struct {
	db   *bun.DB
	repo repository.Repository[*connectionRecord]
}

func (s *ConnectionStore) Activate(ctx context.Context, in core.ActivateConnectionInput) (core.PlatformConnection, error) {
	if s == nil || s.db == nil {
		return core.PlatformConnection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	in.ProfileID = strings.TrimSpace(in.ProfileID)
	if in.ProfileID == "" {
		return core.PlatformConnection{}, fmt.Errorf("sqlstore: profile id is required")
	}
	if _, err := core.ParsePlatformType(string(in.PlatformType)); err != nil {
		return core.PlatformConnection{}, err
	}
	now := time.Now().UTC()

	var out core.PlatformConnection
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findLatestConnection(ctx, tx, in.ProfileID, in.PlatformType)
		if err != nil {
			return err
		}
		if existing != nil {
			// Reconnecting reuses the connection id so stored tickets stay attached.
			existing.IsActive = true
			existing.AuthTokens = copyAnyMap(in.AuthTokens)
			if name := strings.TrimSpace(in.PlatformName); name != "" {
				existing.PlatformName = name
			}
			existing.UpdatedAt = now
			if _, updateErr := tx.NewUpdate().Model(existing).WherePK().Exec(ctx); updateErr != nil {
				return updateErr
			}
			out = existing.toDomain()
			return nil
		}

		record := newConnectionRecord(in, now)
		if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
			return insertErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.PlatformConnection{}, err
	}
	return out, nil
}

func (s *ConnectionStore) Get(ctx context.Context, id string) (core.PlatformConnection, error) {
	if s == nil || s.db == nil {
		return core.PlatformConnection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	record := &connectionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.PlatformConnection{}, fmt.Errorf("%w: id %q", core.ErrConnectionNotFound, id)
		}
		return core.PlatformConnection{}, err
	}
	return record.toDomain(), nil
}

func (s *ConnectionStore) FindActive(ctx context.Context, profileID string, platformType core.PlatformType) (core.PlatformConnection, error) {
	if s == nil || s.db == nil {
		return core.PlatformConnection{}, fmt.Errorf("sqlstore: connection store is not configured")
	}
	record, err := findActiveConnection(ctx, s.db, profileID, platformType)
	if err != nil {
		return core.PlatformConnection{}, err
	}
	if record == nil {
		return core.PlatformConnection{}, fmt.Errorf("%w: %s", core.ErrConnectionNotFound, platformType)
	}
	return record.toDomain(), nil
}

func (s *ConnectionStore) ListByProfile(ctx context.Context, profileID string) ([]core.PlatformConnection, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("profile_id", "=", strings.TrimSpace(profileID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return connectionsToDomain(records), nil
}

func (s *ConnectionStore) ListActive(ctx context.Context) ([]core.PlatformConnection, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: connection store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_active = ?", true)
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	return connectionsToDomain(records), nil
}

func (s *ConnectionStore) MarkFetched(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: connection store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: connection id is required")
	}
	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		return err
	}
	at = at.UTC()
	current.LastFetchedAt = &at
	current.UpdatedAt = at

	_, err = s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	return err
}

func (s *ConnectionStore) Deactivate(ctx context.Context, profileID string, platformType core.PlatformType) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: connection store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*connectionRecord)(nil)).
		Set("is_active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("profile_id = ?", strings.TrimSpace(profileID)).
		Where("platform_type = ?", string(platformType)).
		Where("is_active = ?", true).
		Exec(ctx)
	return err
}

func findActiveConnection(ctx context.Context, db bun.IDB, profileID string, platformType core.PlatformType) (*connectionRecord, error) {
	record := &connectionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.profile_id = ?", strings.TrimSpace(profileID)).
		Where("?TableAlias.platform_type = ?", string(platformType)).
		Where("?TableAlias.is_active = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func findLatestConnection(ctx context.Context, db bun.IDB, profileID string, platformType core.PlatformType) (*connectionRecord, error) {
	record := &connectionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.profile_id = ?", strings.TrimSpace(profileID)).
		Where("?TableAlias.platform_type = ?", string(platformType)).
		OrderExpr("?TableAlias.is_active DESC, ?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func connectionsToDomain(records []*connectionRecord) []core.PlatformConnection {
	out := make([]core.PlatformConnection, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out
}
