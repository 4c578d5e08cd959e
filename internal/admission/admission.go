package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	limiter "github.com/ulule/limiter/v3"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

type AccountStore interface {
	Get(ctx context.Context, id string) (*domain.ExternalAccount, error)
}

type JobStore interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	FindNonTerminal(ctx context.Context, accountID string, scope domain.SyncScope) (*domain.SyncJob, error)
	Transition(ctx context.Context, id string, from, to domain.JobStatus, errMsg *string) error
}

type Runner interface {
	Run(ctx context.Context, job *domain.SyncJob)
}

// SubmitRequest describes one sync request. Internal submissions
// (scheduler, worker-to-worker) bypass the per-user rate cap but are
// still deduplicated.
type SubmitRequest struct {
	AccountID string
	UserID    string
	Scope     domain.SyncScope
	Priority  int
	Internal  bool
}

// Controller is the admission gate: it deduplicates in-flight jobs per
// (account, scope), enforces the per-user submission cap, and queues work
// asynchronously. Submit returns as soon as the job is queued; callers
// observe the outcome through the progress broadcaster or status endpoint.
type Controller struct {
	accounts   AccountStore
	jobs       JobStore
	limiter    *limiter.Limiter
	queue      chan *domain.SyncJob
	jobTimeout time.Duration
	logger     *slog.Logger
}

func NewController(
	accounts AccountStore,
	jobs JobStore,
	submitsPerHour int64,
	queueSize int,
	jobTimeout time.Duration,
	logger *slog.Logger,
) *Controller {
	rate := limiter.Rate{
		Period: time.Hour,
		Limit:  submitsPerHour,
	}
	return &Controller{
		accounts:   accounts,
		jobs:       jobs,
		limiter:    limiter.New(memorystore.NewStore(), rate),
		queue:      make(chan *domain.SyncJob, queueSize),
		jobTimeout: jobTimeout,
		logger:     logger.With("component", "admission"),
	}
}

func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (*domain.SyncJob, error) {
	account, err := c.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if !account.Active {
		return nil, domain.ErrAccountInactive
	}

	if !req.Internal {
		lctx, err := c.limiter.Get(ctx, req.UserID+":"+req.AccountID)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if lctx.Reached {
			retryAfter := time.Until(time.Unix(lctx.Reset, 0))
			if retryAfter < 0 {
				retryAfter = 0
			}
			return nil, &domain.RateLimitedError{RetryAfter: retryAfter}
		}
	}

	if existing, err := c.jobs.FindNonTerminal(ctx, req.AccountID, req.Scope); err != nil {
		return nil, fmt.Errorf("check in-flight jobs: %w", err)
	} else if existing != nil {
		return nil, domain.ErrJobConflict
	}

	job := &domain.SyncJob{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		UserID:    req.UserID,
		Scope:     req.Scope,
		Priority:  req.Priority,
		Status:    domain.JobQueued,
	}
	if err := c.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	select {
	case c.queue <- job:
	default:
		msg := domain.ErrQueueFull.Error()
		if terr := c.jobs.Transition(ctx, job.ID, domain.JobQueued, domain.JobFailed, &msg); terr != nil {
			c.logger.Error("failed to fail unqueueable job", "job_id", job.ID, "error", terr)
		}
		return nil, domain.ErrQueueFull
	}

	c.logger.Info("job admitted",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"scope", job.Scope,
		"internal", req.Internal,
	)
	return job, nil
}

// SubmitInternal enqueues a scheduled full sync, bypassing the user cap.
func (c *Controller) SubmitInternal(ctx context.Context, accountID string, scope domain.SyncScope) error {
	_, err := c.Submit(ctx, SubmitRequest{
		AccountID: accountID,
		UserID:    "system",
		Scope:     scope,
		Internal:  true,
	})
	return err
}

// Start runs the worker pool draining the queue. Blocks until ctx is done
// and all workers have returned.
func (c *Controller) Start(ctx context.Context, workers int, runner Runner) {
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx, runner)
		}()
	}
	wg.Wait()
}

func (c *Controller) work(ctx context.Context, runner Runner) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-c.queue:
			jobCtx, cancel := context.WithTimeout(ctx, c.jobTimeout)
			runner.Run(jobCtx, job)
			cancel()
		}
	}
}
