package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/retry"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/secrets"
)

// expirySkew treats tokens expiring this soon as already expired, so a
// token handed out is valid for at least the skew window.
const expirySkew = 2 * time.Minute

// maxErrorDetail bounds per-account error detail in a batch report.
const maxErrorDetail = 10

type AccountStore interface {
	Get(ctx context.Context, id string) (*domain.ExternalAccount, error)
	SetActive(ctx context.Context, id string, active bool) error
	ListExpiringWithin(ctx context.Context, cutoff time.Time) ([]domain.ExternalAccount, error)
}

type CredentialStore interface {
	Get(ctx context.Context, accountID string) (*domain.Credential, error)
	UpdateTokens(ctx context.Context, accountID string, accessEnc string, refreshEnc *string, expiresAt, expectedExpiry time.Time) error
}

type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Manager keeps account credentials alive. Refreshes for the same account
// are coalesced through singleflight so concurrent callers trigger at most
// one provider call, and persisted with compare-and-set so a refresh
// racing another process cannot invalidate a token still in use.
type Manager struct {
	accounts  AccountStore
	creds     CredentialStore
	refresher Refresher
	box       *secrets.Box
	policy    retry.Policy
	group     singleflight.Group
	logger    *slog.Logger
}

func NewManager(
	accounts AccountStore,
	creds CredentialStore,
	refresher Refresher,
	box *secrets.Box,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		accounts:  accounts,
		creds:     creds,
		refresher: refresher,
		box:       box,
		policy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			Retryable:      domain.IsTransient,
		},
		logger: logger.With("component", "token_manager"),
	}
}

// ValidAccessToken returns a non-expired access token for the account,
// refreshing it first if the stored one is expired or about to be.
func (m *Manager) ValidAccessToken(ctx context.Context, accountID string) (string, error) {
	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !account.Active {
		return "", fmt.Errorf("account %s is inactive: %w", accountID, domain.ErrReauthRequired)
	}

	cred, err := m.creds.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if cred.AccessTokenEncrypted != "" && time.Until(cred.ExpiresAt) > expirySkew {
		return m.box.Decrypt(cred.AccessTokenEncrypted)
	}

	return m.refresh(ctx, accountID, expirySkew)
}

// ForceRefresh refreshes regardless of stored expiry. Used after the API
// rejects a token that looked valid locally.
func (m *Manager) ForceRefresh(ctx context.Context, accountID string) (string, error) {
	return m.refresh(ctx, accountID, -1)
}

// refresh coalesces concurrent refreshes for one account. minTTL is how
// much remaining validity counts as fresh enough to skip the provider
// call; negative forces the call.
func (m *Manager) refresh(ctx context.Context, accountID string, minTTL time.Duration) (string, error) {
	v, err, _ := m.group.Do(accountID, func() (interface{}, error) {
		return m.doRefresh(ctx, accountID, minTTL)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context, accountID string, minTTL time.Duration) (string, error) {
	// Re-read after the flight gate: another caller may have refreshed
	// while we waited.
	cred, err := m.creds.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	if minTTL >= 0 && cred.AccessTokenEncrypted != "" && time.Until(cred.ExpiresAt) > minTTL {
		return m.box.Decrypt(cred.AccessTokenEncrypted)
	}

	if !cred.HasRefreshToken() {
		m.deactivate(ctx, accountID)
		return "", fmt.Errorf("no refresh token for account %s: %w", accountID, domain.ErrReauthRequired)
	}

	refreshToken, err := m.box.Decrypt(*cred.RefreshTokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("decrypt refresh token: %w", err)
	}

	var tok *oauth2.Token
	err = retry.Do(ctx, m.policy, func(ctx context.Context) error {
		var rerr error
		tok, rerr = m.refresher.RefreshToken(ctx, refreshToken)
		return rerr
	})
	if err != nil {
		if errors.Is(err, domain.ErrReauthRequired) {
			m.deactivate(ctx, accountID)
		}
		return "", fmt.Errorf("refresh token for account %s: %w", accountID, err)
	}

	accessEnc, err := m.box.Encrypt(tok.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}
	var refreshEnc *string
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		enc, encErr := m.box.Encrypt(tok.RefreshToken)
		if encErr != nil {
			return "", fmt.Errorf("encrypt refresh token: %w", encErr)
		}
		refreshEnc = &enc
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}

	err = m.creds.UpdateTokens(ctx, accountID, accessEnc, refreshEnc, expiry, cred.ExpiresAt)
	if errors.Is(err, domain.ErrStaleCredential) {
		// Lost a compare-and-set race: a concurrent refresh won. Use the
		// winner's token rather than clobbering it.
		fresh, gerr := m.creds.Get(ctx, accountID)
		if gerr != nil {
			return "", gerr
		}
		return m.box.Decrypt(fresh.AccessTokenEncrypted)
	}
	if err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	m.logger.Info("refreshed access token", "account_id", accountID, "expires_at", expiry)
	return tok.AccessToken, nil
}

// RefreshExpiringSoon refreshes tokens of all active accounts expiring
// within horizon. Accounts are processed strictly sequentially to stay
// under the provider's per-minute throttling.
func (m *Manager) RefreshExpiringSoon(ctx context.Context, horizon time.Duration) (*domain.RefreshReport, error) {
	cutoff := time.Now().Add(horizon)
	accounts, err := m.accounts.ListExpiringWithin(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expiring accounts: %w", err)
	}

	report := &domain.RefreshReport{}
	for _, account := range accounts {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		cred, err := m.creds.Get(ctx, account.ID)
		if err != nil {
			report.Failed++
			m.recordError(report, account.ID, err)
			continue
		}
		if !cred.HasRefreshToken() {
			report.Skipped++
			m.logger.Debug("skipping account without refresh token", "account_id", account.ID)
			continue
		}
		if time.Until(cred.ExpiresAt) > horizon {
			// Already refreshed since the listing query.
			report.Skipped++
			continue
		}

		// The whole point of the batch is refreshing tokens that are
		// still valid right now, so freshness is judged against the
		// horizon rather than the on-demand skew.
		if _, err := m.refresh(ctx, account.ID, horizon); err != nil {
			report.Failed++
			m.recordError(report, account.ID, err)
			continue
		}
		report.Refreshed++
	}

	m.logger.Info("proactive refresh batch finished",
		"refreshed", report.Refreshed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

func (m *Manager) recordError(report *domain.RefreshReport, accountID string, err error) {
	m.logger.Warn("refresh failed", "account_id", accountID, "error", err)
	if len(report.Errors) < maxErrorDetail {
		report.Errors = append(report.Errors, domain.RefreshError{
			AccountID: accountID,
			Message:   err.Error(),
		})
	}
}

func (m *Manager) deactivate(ctx context.Context, accountID string) {
	if err := m.accounts.SetActive(ctx, accountID, false); err != nil {
		m.logger.Error("failed to deactivate account", "account_id", accountID, "error", err)
		return
	}
	m.logger.Warn("account deactivated, reauthorization required", "account_id", accountID)
}
