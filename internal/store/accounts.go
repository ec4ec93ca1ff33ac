package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"scriptlab/internal/services"
)

// Account holds account-bound data: the creator's face and voice references
// and the brand profile.
type Account struct {
	ID          string
	CreatorJSON []byte
	BrandJSON   []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GetAccount fetches an account. Unknown IDs wrap services.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (*Account, error) {
	ctx = ensureContext(ctx)
	var (
		acct                   Account
		creator, brand         sql.NullString
		createdRaw, updatedRaw string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, creator_json, brand_json, created_at, updated_at FROM accounts WHERE id = ?`, id,
	).Scan(&acct.ID, &creator, &brand, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get account", "unknown account "+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	acct.CreatorJSON = blob(creator)
	acct.BrandJSON = blob(brand)
	acct.CreatedAt, _ = parseTimeString(createdRaw)
	acct.UpdatedAt, _ = parseTimeString(updatedRaw)
	return &acct, nil
}

// UpdateAccount creates or replaces an account.
func (s *Store) UpdateAccount(ctx context.Context, acct *Account) error {
	if acct == nil || strings.TrimSpace(acct.ID) == "" {
		return services.Wrap(services.ErrValidation, "store", "update account", "account id required", nil)
	}
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO accounts (id, creator_json, brand_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET creator_json = excluded.creator_json,
			brand_json = excluded.brand_json, updated_at = excluded.updated_at`,
		acct.ID, nullableBlob(acct.CreatorJSON), nullableBlob(acct.BrandJSON), now, now,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	acct.UpdatedAt, _ = parseTimeString(now)
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = acct.UpdatedAt
	}
	return nil
}
