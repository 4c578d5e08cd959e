package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

type AccountStore struct {
	db *sqlx.DB
}

func NewAccountStore(db *sqlx.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Get(ctx context.Context, id string) (*domain.ExternalAccount, error) {
	query := `
		SELECT a.id, a.user_id, a.active, a.created_at, a.updated_at,
		       COALESCE(c.expires_at, to_timestamp(0)) AS token_expires_at
		FROM external_accounts a
		LEFT JOIN credentials c ON c.account_id = a.id
		WHERE a.id = $1`

	var account domain.ExternalAccount
	err := s.db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// SetActive flips the active flag. Deactivation is how the engine retires
// an account whose refresh token went bad; rows are never deleted.
func (s *AccountStore) SetActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE external_accounts SET active = $2, updated_at = now() WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// ListExpiringWithin returns active accounts whose token expires before
// cutoff, soonest first. Accounts without credentials are excluded.
func (s *AccountStore) ListExpiringWithin(ctx context.Context, cutoff time.Time) ([]domain.ExternalAccount, error) {
	query := `
		SELECT a.id, a.user_id, a.active, a.created_at, a.updated_at,
		       c.expires_at AS token_expires_at
		FROM external_accounts a
		JOIN credentials c ON c.account_id = a.id
		WHERE a.active AND c.expires_at <= $1
		ORDER BY c.expires_at`

	var accounts []domain.ExternalAccount
	if err := s.db.SelectContext(ctx, &accounts, query, cutoff); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *AccountStore) ListActiveIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM external_accounts WHERE active ORDER BY id`)
	return ids, err
}
