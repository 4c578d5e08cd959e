package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
	"github.com/NN224/NNH-AI-Studio-sub005/internal/retry"
)

// Coordinator commits one job's fetched payload as a single transaction:
// all three collections are upserted or none are, as observed by any
// reader. Transient storage errors (lock contention, dropped connections)
// are retried with backoff; integrity errors are fatal to the job.
type Coordinator struct {
	resources ResourceStore
	tx        TransactionManager
	policy    retry.Policy
	logger    *slog.Logger
}

func NewCoordinator(resources ResourceStore, tx TransactionManager, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		resources: resources,
		tx:        tx,
		policy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
			Retryable:      domain.IsTransient,
		},
		logger: logger.With("component", "coordinator"),
	}
}

func (c *Coordinator) Commit(ctx context.Context, payload *domain.SyncPayload) (*domain.CommitResult, error) {
	var result domain.CommitResult

	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return c.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			n, err := c.resources.UpsertLocations(txCtx, payload.Locations)
			if err != nil {
				return fmt.Errorf("commit locations: %w", err)
			}
			result.Locations = n

			n, err = c.resources.UpsertReviews(txCtx, payload.Reviews)
			if err != nil {
				return fmt.Errorf("commit reviews: %w", err)
			}
			result.Reviews = n

			n, err = c.resources.UpsertQuestions(txCtx, payload.Questions)
			if err != nil {
				return fmt.Errorf("commit questions: %w", err)
			}
			result.Questions = n
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("committed sync payload",
		"locations", result.Locations,
		"reviews", result.Reviews,
		"questions", result.Questions,
	)
	return &result, nil
}
