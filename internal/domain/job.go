package domain

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. A job becomes terminal
// exactly once.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type SyncScope string

const (
	ScopeFull      SyncScope = "full"
	ScopeReviews   SyncScope = "reviews"
	ScopeQuestions SyncScope = "questions"
)

// ParseScope validates a caller-supplied scope string.
func ParseScope(s string) (SyncScope, error) {
	switch SyncScope(s) {
	case ScopeFull, ScopeReviews, ScopeQuestions:
		return SyncScope(s), nil
	}
	return "", ErrInvalidScope
}

// IncludesReviews reports whether review fetching is in scope.
func (s SyncScope) IncludesReviews() bool {
	return s == ScopeFull || s == ScopeReviews
}

// IncludesQuestions reports whether question fetching is in scope.
func (s SyncScope) IncludesQuestions() bool {
	return s == ScopeFull || s == ScopeQuestions
}

// SyncJob is one synchronization attempt for one account and scope.
type SyncJob struct {
	ID        string    `db:"id"`
	AccountID string    `db:"account_id"`
	UserID    string    `db:"user_id"`
	Scope     SyncScope `db:"scope"`
	Priority  int       `db:"priority"`
	Status    JobStatus `db:"status"`
	Error     *string   `db:"error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
