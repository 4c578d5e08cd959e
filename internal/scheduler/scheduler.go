package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

type TokenRefresher interface {
	RefreshExpiringSoon(ctx context.Context, horizon time.Duration) (*domain.RefreshReport, error)
}

type Submitter interface {
	SubmitInternal(ctx context.Context, accountID string, scope domain.SyncScope) error
}

type AccountLister interface {
	ListActiveIDs(ctx context.Context) ([]string, error)
}

// Config holds the two recurring intervals: the proactive token refresh
// batch and the periodic full sync per active account.
type Config struct {
	RefreshInterval time.Duration
	RefreshHorizon  time.Duration
	SyncInterval    time.Duration
}

type Scheduler struct {
	refresher TokenRefresher
	submitter Submitter
	accounts  AccountLister
	cfg       Config
	logger    *slog.Logger
}

func NewScheduler(
	refresher TokenRefresher,
	submitter Submitter,
	accounts AccountLister,
	cfg Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		submitter: submitter,
		accounts:  accounts,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"refresh_interval", s.cfg.RefreshInterval,
		"sync_interval", s.cfg.SyncInterval,
	)

	refreshTicker := time.NewTicker(s.cfg.RefreshInterval)
	defer refreshTicker.Stop()
	syncTicker := time.NewTicker(s.cfg.SyncInterval)
	defer syncTicker.Stop()

	// First pass right away; the tickers only cover steady state.
	s.runRefresh(ctx)
	s.runSyncSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-refreshTicker.C:
			s.runRefresh(ctx)
		case <-syncTicker.C:
			s.runSyncSweep(ctx)
		}
	}
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	report, err := s.refresher.RefreshExpiringSoon(ctx, s.cfg.RefreshHorizon)
	if err != nil {
		s.logger.Error("proactive refresh failed", "error", err)
		return
	}
	s.logger.Info("proactive refresh done",
		"refreshed", report.Refreshed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
}

// runSyncSweep enqueues a full sync for every active account. Conflicts
// with jobs already in flight are expected and skipped.
func (s *Scheduler) runSyncSweep(ctx context.Context) {
	ids, err := s.accounts.ListActiveIDs(ctx)
	if err != nil {
		s.logger.Error("list accounts for sweep failed", "error", err)
		return
	}

	for _, id := range ids {
		err := s.submitter.SubmitInternal(ctx, id, domain.ScopeFull)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrJobConflict):
			s.logger.Debug("sync already in flight", "account_id", id)
		default:
			s.logger.Warn("failed to enqueue scheduled sync", "account_id", id, "error", err)
		}
	}
}
