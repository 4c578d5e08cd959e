package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/progress"
)

// SyncService runs one job end to end: token, fetch, commit, cache
// invalidation, event publication. Every terminal outcome emits a final
// progress event; a job that hangs silently is a bug.
type SyncService struct {
	fetcher     Fetcher
	committer   Committer
	jobs        JobStore
	cache       CacheInvalidator
	publisher   Publisher
	broadcaster *progress.Broadcaster
	logger      *slog.Logger
}

func NewSyncService(
	fetcher Fetcher,
	committer Committer,
	jobs JobStore,
	cache CacheInvalidator,
	publisher Publisher,
	broadcaster *progress.Broadcaster,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		fetcher:     fetcher,
		committer:   committer,
		jobs:        jobs,
		cache:       cache,
		publisher:   publisher,
		broadcaster: broadcaster,
		logger:      logger.With("component", "sync"),
	}
}

// Run executes the job. It never returns an error: outcomes are recorded
// on the job row and broadcast as progress events.
func (s *SyncService) Run(ctx context.Context, job *domain.SyncJob) {
	logger := s.logger.With("job_id", job.ID, "account_id", job.AccountID, "scope", job.Scope)
	tr := progress.NewTracker(s.broadcaster, job.ID, job.Scope)

	fail := func(stage domain.Stage, err error) {
		logger.Error("sync failed", "stage", stage, "error", err)
		msg := err.Error()
		if terr := s.jobs.Transition(ctx, job.ID, domain.JobRunning, domain.JobFailed, &msg); terr != nil {
			logger.Error("failed to mark job failed", "error", terr)
		}
		tr.Fail(stage, err)
		if s.publisher != nil {
			if perr := s.publisher.PublishSyncResult(ctx, job, nil, err); perr != nil {
				logger.Warn("failed to publish sync result", "error", perr)
			}
		}
	}

	tr.StageRunning(domain.StageInit)
	if err := s.jobs.Transition(ctx, job.ID, domain.JobQueued, domain.JobRunning, nil); err != nil {
		// Someone else already moved this job; nothing to clean up.
		logger.Error("cannot start job", "error", err)
		tr.Fail(domain.StageInit, err)
		return
	}
	job.Status = domain.JobRunning
	tr.StageCompleted(domain.StageInit)

	logger.Info("starting sync")

	tr.StageRunning(domain.StageLocationsFetch)
	locations, err := s.fetcher.Locations(ctx, job.AccountID)
	if err != nil {
		fail(domain.StageLocationsFetch, fmt.Errorf("fetch locations: %w", err))
		return
	}
	tr.RecordCounts(domain.CommitResult{Locations: len(locations)})
	tr.StageCompleted(domain.StageLocationsFetch)

	locationIDs := make([]string, len(locations))
	for i, loc := range locations {
		locationIDs[i] = loc.ExternalID
	}

	payload := &domain.SyncPayload{Locations: locations}

	if job.Scope.IncludesReviews() {
		tr.StageRunning(domain.StageReviewsFetch)
		reviews, err := s.fetcher.Reviews(ctx, job.AccountID, locationIDs)
		if err != nil {
			fail(domain.StageReviewsFetch, fmt.Errorf("fetch reviews: %w", err))
			return
		}
		payload.Reviews = reviews
		tr.RecordCounts(domain.CommitResult{Reviews: len(reviews)})
		tr.StageCompleted(domain.StageReviewsFetch)
	}

	if job.Scope.IncludesQuestions() {
		tr.StageRunning(domain.StageQuestionsFetch)
		questions, err := s.fetcher.Questions(ctx, job.AccountID, locationIDs)
		if err != nil {
			fail(domain.StageQuestionsFetch, fmt.Errorf("fetch questions: %w", err))
			return
		}
		payload.Questions = questions
		tr.RecordCounts(domain.CommitResult{Questions: len(questions)})
		tr.StageCompleted(domain.StageQuestionsFetch)
	}

	tr.StageRunning(domain.StageTransaction)
	result, err := s.committer.Commit(ctx, payload)
	if err != nil {
		fail(domain.StageTransaction, fmt.Errorf("commit: %w", err))
		return
	}
	tr.RecordCounts(*result)
	tr.StageCompleted(domain.StageTransaction)

	tr.StageRunning(domain.StageCacheRefresh)
	if s.cache != nil {
		if err := s.cache.InvalidateAccount(ctx, job.AccountID); err != nil {
			fail(domain.StageCacheRefresh, fmt.Errorf("invalidate cache: %w", err))
			return
		}
	}
	tr.StageCompleted(domain.StageCacheRefresh)

	if err := s.jobs.Transition(ctx, job.ID, domain.JobRunning, domain.JobCompleted, nil); err != nil {
		logger.Error("failed to mark job completed", "error", err)
	}
	tr.Done()

	if s.publisher != nil {
		if err := s.publisher.PublishSyncResult(ctx, job, result, nil); err != nil {
			logger.Warn("failed to publish sync result", "error", err)
		}
	}

	logger.Info("sync completed",
		"locations", result.Locations,
		"reviews", result.Reviews,
		"questions", result.Questions,
	)
}
