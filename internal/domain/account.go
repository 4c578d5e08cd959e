package domain

import "time"

// ExternalAccount is a connected Business Profile account whose data is
// mirrored locally. Accounts are never deleted: when the refresh token
// becomes permanently invalid the account is deactivated and stays that
// way until the user completes a fresh OAuth consent.
type ExternalAccount struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	Active         bool      `db:"active"`
	TokenExpiresAt time.Time `db:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Credential holds the encrypted token pair for one account. Tokens are
// AES-GCM encrypted before they reach this struct; nothing outside the
// token manager should ever see them in clear.
type Credential struct {
	AccountID             string    `db:"account_id"`
	AccessTokenEncrypted  string    `db:"access_token_enc"`
	RefreshTokenEncrypted *string   `db:"refresh_token_enc"`
	ExpiresAt             time.Time `db:"expires_at"`
	UpdatedAt             time.Time `db:"updated_at"`
}

// HasRefreshToken reports whether the credential can be refreshed without
// user interaction.
func (c *Credential) HasRefreshToken() bool {
	return c.RefreshTokenEncrypted != nil && *c.RefreshTokenEncrypted != ""
}

// RefreshReport summarizes one proactive refresh batch.
type RefreshReport struct {
	Refreshed int
	Skipped   int
	Failed    int
	Errors    []RefreshError
}

// RefreshError carries per-account failure detail. The batch keeps only a
// bounded number of these.
type RefreshError struct {
	AccountID string
	Message   string
}
