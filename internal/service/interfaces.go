package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

type Fetcher interface {
	Locations(ctx context.Context, accountID string) ([]domain.LocationRecord, error)
	Reviews(ctx context.Context, accountID string, locationIDs []string) ([]domain.ReviewRecord, error)
	Questions(ctx context.Context, accountID string, locationIDs []string) ([]domain.QuestionRecord, error)
}

type Committer interface {
	Commit(ctx context.Context, payload *domain.SyncPayload) (*domain.CommitResult, error)
}

type ResourceStore interface {
	UpsertLocations(ctx context.Context, locations []domain.LocationRecord) (int, error)
	UpsertReviews(ctx context.Context, reviews []domain.ReviewRecord) (int, error)
	UpsertQuestions(ctx context.Context, questions []domain.QuestionRecord) (int, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type JobStore interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	Get(ctx context.Context, id string) (*domain.SyncJob, error)
	FindNonTerminal(ctx context.Context, accountID string, scope domain.SyncScope) (*domain.SyncJob, error)
	Transition(ctx context.Context, id string, from, to domain.JobStatus, errMsg *string) error
}

type AccountStore interface {
	Get(ctx context.Context, id string) (*domain.ExternalAccount, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
}

type CacheInvalidator interface {
	InvalidateAccount(ctx context.Context, accountID string) error
}

type Publisher interface {
	PublishSyncResult(ctx context.Context, job *domain.SyncJob, result *domain.CommitResult, syncErr error) error
	Close() error
}
