package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReauthRequired means the account's refresh token is missing or
	// permanently invalid. The account is deactivated and stays unusable
	// until the user completes a fresh OAuth consent.
	ErrReauthRequired = errors.New("reauthorization required")

	// ErrNoCredential means the account has no stored credential at all.
	ErrNoCredential = errors.New("no credential stored for account")

	// ErrAccountNotFound is returned for unknown account IDs.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountInactive is returned for deactivated accounts.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrJobConflict means a non-terminal job already exists for the same
	// account and scope.
	ErrJobConflict = errors.New("sync job already in flight")

	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("sync job not found")

	// ErrQueueFull means the job queue cannot accept more work right now.
	ErrQueueFull = errors.New("job queue is full")

	// ErrStaleCredential signals a lost compare-and-set race on a
	// credential update; the caller should re-read and use the winner's
	// token.
	ErrStaleCredential = errors.New("credential was updated concurrently")

	// ErrInvalidScope is returned for scope strings outside full,
	// reviews, questions.
	ErrInvalidScope = errors.New("invalid sync scope")
)

// TransientError wraps failures worth retrying: network errors, 5xx
// responses, lock contention, connection drops.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as retryable. Returns nil for nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// RateLimitedError rejects an admission request; RetryAfter tells the
// caller when the next attempt may succeed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
