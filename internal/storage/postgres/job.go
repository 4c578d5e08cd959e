package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a queued job. The partial unique index on
// (account_id, scope) over non-terminal statuses is the backstop for
// admission-time deduplication; a violation surfaces as ErrJobConflict.
func (s *JobStore) Create(ctx context.Context, job *domain.SyncJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (id, account_id, user_id, scope, priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		job.ID, job.AccountID, job.UserID, job.Scope, job.Priority, job.Status,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return domain.ErrJobConflict
	}
	return err
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := s.db.GetContext(ctx, &job,
		`SELECT id, account_id, user_id, scope, priority, status, error, created_at, updated_at
		 FROM sync_jobs WHERE id = $1`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindNonTerminal returns the in-flight job for (account, scope), or nil.
func (s *JobStore) FindNonTerminal(ctx context.Context, accountID string, scope domain.SyncScope) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := s.db.GetContext(ctx, &job,
		`SELECT id, account_id, user_id, scope, priority, status, error, created_at, updated_at
		 FROM sync_jobs
		 WHERE account_id = $1 AND scope = $2 AND status IN ('queued', 'running')
		 LIMIT 1`,
		accountID, scope,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Transition moves a job from one status to another with compare-and-set
// on the current status, so a job can become terminal exactly once.
func (s *JobStore) Transition(ctx context.Context, id string, from, to domain.JobStatus, errMsg *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = $3, error = $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to, errMsg,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrJobConflict
	}
	return nil
}
