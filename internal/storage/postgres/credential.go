package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

type CredentialStore struct {
	db *sqlx.DB
}

func NewCredentialStore(db *sqlx.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) Get(ctx context.Context, accountID string) (*domain.Credential, error) {
	var cred domain.Credential
	err := s.db.GetContext(ctx, &cred,
		`SELECT account_id, access_token_enc, refresh_token_enc, expires_at, updated_at
		 FROM credentials WHERE account_id = $1`,
		accountID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoCredential
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

// Upsert stores the full credential, used on OAuth connect.
func (s *CredentialStore) Upsert(ctx context.Context, cred *domain.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (account_id, access_token_enc, refresh_token_enc, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (account_id) DO UPDATE SET
			access_token_enc = EXCLUDED.access_token_enc,
			refresh_token_enc = EXCLUDED.refresh_token_enc,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`,
		cred.AccountID,
		cred.AccessTokenEncrypted,
		cred.RefreshTokenEncrypted,
		cred.ExpiresAt,
	)
	return err
}

// UpdateTokens persists a refreshed token pair with compare-and-set on the
// previous expiry, so a proactive refresh and an on-demand refresh racing
// for the same account cannot clobber each other. A lost race returns
// ErrStaleCredential; callers re-read and use the winner's token.
func (s *CredentialStore) UpdateTokens(
	ctx context.Context,
	accountID string,
	accessEnc string,
	refreshEnc *string,
	expiresAt time.Time,
	expectedExpiry time.Time,
) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET
			access_token_enc = $2,
			refresh_token_enc = COALESCE($3, refresh_token_enc),
			expires_at = $4,
			updated_at = now()
		WHERE account_id = $1 AND expires_at = $5`,
		accountID, accessEnc, refreshEnc, expiresAt, expectedExpiry,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrStaleCredential
	}
	return nil
}
