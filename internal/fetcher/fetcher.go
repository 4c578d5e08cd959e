package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

type API interface {
	ListLocations(ctx context.Context, accessToken, accountID string) ([]domain.LocationRecord, error)
	ListReviews(ctx context.Context, accessToken, accountID, locationID string) ([]domain.ReviewRecord, error)
	ListQuestions(ctx context.Context, accessToken, accountID, locationID string) ([]domain.QuestionRecord, error)
}

type TokenProvider interface {
	ValidAccessToken(ctx context.Context, accountID string) (string, error)
	ForceRefresh(ctx context.Context, accountID string) (string, error)
}

// Fetcher retrieves an account's resources from the external API.
// Locations are load-bearing: any failure there is fatal. Reviews and
// questions fan out per location with bounded concurrency, and a single
// location's failure skips that location only.
type Fetcher struct {
	api    API
	tokens TokenProvider
	fanOut int
	logger *slog.Logger
}

func New(api API, tokens TokenProvider, fanOut int, logger *slog.Logger) *Fetcher {
	if fanOut <= 0 {
		fanOut = 1
	}
	return &Fetcher{
		api:    api,
		tokens: tokens,
		fanOut: fanOut,
		logger: logger.With("component", "fetcher"),
	}
}

func (f *Fetcher) Locations(ctx context.Context, accountID string) ([]domain.LocationRecord, error) {
	var records []domain.LocationRecord
	err := f.withAuth(ctx, accountID, func(token string) error {
		var ferr error
		records, ferr = f.api.ListLocations(ctx, token, accountID)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Reviews fetches reviews for each location. Pagination within one
// location stays sequential (cursor dependency); locations are fetched
// concurrently up to the fan-out limit.
func (f *Fetcher) Reviews(ctx context.Context, accountID string, locationIDs []string) ([]domain.ReviewRecord, error) {
	var (
		mu  sync.Mutex
		all []domain.ReviewRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.fanOut)

	for _, locationID := range locationIDs {
		g.Go(func() error {
			var records []domain.ReviewRecord
			err := f.withAuth(gctx, accountID, func(token string) error {
				var ferr error
				records, ferr = f.api.ListReviews(gctx, token, accountID, locationID)
				return ferr
			})
			if err != nil {
				// Containment is for per-location failures only. A
				// revoked account fails the whole job.
				if errors.Is(err, domain.ErrReauthRequired) {
					return err
				}
				f.logger.Warn("skipping reviews for location",
					"account_id", accountID,
					"location", locationID,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			all = append(all, records...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// Questions mirrors Reviews' partial-failure policy.
func (f *Fetcher) Questions(ctx context.Context, accountID string, locationIDs []string) ([]domain.QuestionRecord, error) {
	var (
		mu  sync.Mutex
		all []domain.QuestionRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.fanOut)

	for _, locationID := range locationIDs {
		g.Go(func() error {
			var records []domain.QuestionRecord
			err := f.withAuth(gctx, accountID, func(token string) error {
				var ferr error
				records, ferr = f.api.ListQuestions(gctx, token, accountID, locationID)
				return ferr
			})
			if err != nil {
				if errors.Is(err, domain.ErrReauthRequired) {
					return err
				}
				f.logger.Warn("skipping questions for location",
					"account_id", accountID,
					"location", locationID,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			all = append(all, records...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// withAuth runs call with a valid token. If the API still rejects it
// (expired server-side before our skew window), refresh once and retry
// the call once; a second rejection propagates.
func (f *Fetcher) withAuth(ctx context.Context, accountID string, call func(token string) error) error {
	token, err := f.tokens.ValidAccessToken(ctx, accountID)
	if err != nil {
		return err
	}

	err = call(token)
	if err == nil || !errors.Is(err, domain.ErrReauthRequired) {
		return err
	}

	token, rerr := f.tokens.ForceRefresh(ctx, accountID)
	if rerr != nil {
		return rerr
	}
	return call(token)
}
