package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-helpdesk/core"
	"github.com/goliatone/go-helpdesk/security"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// CredentialStore keeps one credential row per profile and platform. When a
// SecretProvider is set, access and refresh tokens are sealed on write.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	secrets core.SecretProvider
}

func (s *CredentialStore) Get(ctx context.Context, profileID string, platformType core.PlatformType) (core.PlatformCredential, error) {
	if s == nil || s.db == nil {
		return core.PlatformCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record, err := findCredential(ctx, s.db, profileID, platformType)
	if err != nil {
		return core.PlatformCredential{}, err
	}
	if record == nil {
		return core.PlatformCredential{}, fmt.Errorf("%w: %s", core.ErrCredentialNotFound, platformType)
	}
	return s.open(ctx, record)
}

func (s *CredentialStore) Upsert(ctx context.Context, in core.SaveCredentialInput) (core.PlatformCredential, error) {
	if s == nil || s.db == nil {
		return core.PlatformCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.ProfileID = strings.TrimSpace(in.ProfileID)
	if in.ProfileID == "" {
		return core.PlatformCredential{}, fmt.Errorf("sqlstore: profile id is required")
	}
	if _, err := core.ParsePlatformType(string(in.PlatformType)); err != nil {
		return core.PlatformCredential{}, err
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return core.PlatformCredential{}, fmt.Errorf("sqlstore: access token is required")
	}
	now := time.Now().UTC()

	var out core.PlatformCredential
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findCredential(ctx, tx, in.ProfileID, in.PlatformType)
		if err != nil {
			return err
		}
		if record == nil {
			record = newCredentialRecord(in, now)
			if err := s.seal(ctx, record); err != nil {
				return err
			}
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			if insertErr == nil {
				out, err = s.open(ctx, record)
				return err
			}
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			record, err = findCredential(ctx, tx, in.ProfileID, in.PlatformType)
			if err != nil {
				return err
			}
			if record == nil {
				return insertErr
			}
		}

		record.apply(in, now)
		if err := s.seal(ctx, record); err != nil {
			return err
		}
		if _, updateErr := tx.NewUpdate().Model(record).WherePK().Exec(ctx); updateErr != nil {
			return updateErr
		}
		out, err = s.open(ctx, record)
		return err
	})
	if err != nil {
		return core.PlatformCredential{}, err
	}
	return out, nil
}

func (s *CredentialStore) UpdateStatus(ctx context.Context, id string, status core.CredentialStatus) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return fmt.Errorf("sqlstore: credential id is required")
	}
	current, err := s.repo.GetByID(ctx, trimmedID)
	if err != nil {
		return err
	}
	domain := current.toDomain()
	if err := domain.TransitionTo(status, time.Now().UTC()); err != nil {
		return err
	}
	current.Status = string(domain.Status)
	current.UpdatedAt = domain.UpdatedAt

	_, err = s.repo.Update(ctx, current, repository.UpdateByID(trimmedID))
	return err
}

func (s *CredentialStore) TouchLastFetched(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	at = at.UTC()
	_, err := s.db.NewUpdate().
		Model((*credentialRecord)(nil)).
		Set("last_fetched_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func (s *CredentialStore) Delete(ctx context.Context, profileID string, platformType core.PlatformType) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("profile_id = ?", strings.TrimSpace(profileID)).
		Where("platform_type = ?", string(platformType)).
		Exec(ctx)
	return err
}

func (s *CredentialStore) seal(ctx context.Context, record *credentialRecord) error {
	if s.secrets == nil {
		return nil
	}
	access, err := s.sealValue(ctx, record.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := s.sealValue(ctx, record.RefreshToken)
	if err != nil {
		return err
	}
	record.AccessToken, record.RefreshToken = access, refresh
	return nil
}

func (s *CredentialStore) sealValue(ctx context.Context, value string) (string, error) {
	if value == "" || security.IsSealed(value) {
		return value, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", fmt.Errorf("sqlstore: seal credential token: %w", err)
	}
	return string(sealed), nil
}

// open returns the domain credential with tokens decrypted. Rows written
// before a cipher was configured are returned as stored.
func (s *CredentialStore) open(ctx context.Context, record *credentialRecord) (core.PlatformCredential, error) {
	out := record.toDomain()
	if s.secrets == nil {
		return out, nil
	}
	var err error
	if out.AccessToken, err = s.openValue(ctx, out.AccessToken); err != nil {
		return core.PlatformCredential{}, err
	}
	if out.RefreshToken, err = s.openValue(ctx, out.RefreshToken); err != nil {
		return core.PlatformCredential{}, err
	}
	return out, nil
}

func (s *CredentialStore) openValue(ctx context.Context, value string) (string, error) {
	if !security.IsSealed(value) {
		return value, nil
	}
	plaintext, err := s.secrets.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", fmt.Errorf("sqlstore: open credential token: %w", err)
	}
	return string(plaintext), nil
}

func findCredential(ctx context.Context, db bun.IDB, profileID string, platformType core.PlatformType) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.profile_id = ?", strings.TrimSpace(profileID)).
		Where("?TableAlias.platform_type = ?", string(platformType)).
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
