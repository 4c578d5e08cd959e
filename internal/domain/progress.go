package domain

import "time"

// Stage names the phases of a sync job, in execution order.
type Stage string

const (
	StageInit           Stage = "init"
	StageLocationsFetch Stage = "locations_fetch"
	StageReviewsFetch   Stage = "reviews_fetch"
	StageQuestionsFetch Stage = "questions_fetch"
	StageTransaction    Stage = "transaction"
	StageCacheRefresh   Stage = "cache_refresh"
	StageComplete       Stage = "complete"
)

type StageStatus string

const (
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageError     StageStatus = "error"
)

// ProgressEvent is an ephemeral broadcast value; it is never persisted
// beyond the job lifetime. A StageComplete event is terminal: StageStatus
// completed means the job succeeded, error means it failed.
type ProgressEvent struct {
	JobID      string       `json:"job_id"`
	Stage      Stage        `json:"stage"`
	Status     StageStatus  `json:"status"`
	Counts     CommitResult `json:"counts"`
	Percentage int          `json:"percentage"`
	ETAMillis  int64        `json:"eta_ms,omitempty"`
	Error      string       `json:"error,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Terminal reports whether no further events will follow for this job.
func (e ProgressEvent) Terminal() bool {
	return e.Stage == StageComplete
}
