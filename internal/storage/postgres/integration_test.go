//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

func ptr[T any](v T) *T { return &v }

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_accounts.up.sql"),
			filepath.Join(migrationsPath, "002_create_sync_jobs.up.sql"),
			filepath.Join(migrationsPath, "003_create_resources.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM reviews")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM questions")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM locations")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_jobs")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM credentials")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM external_accounts")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) seedAccount(id string) {
	_, err := s.db.ExecContext(s.ctx,
		`INSERT INTO external_accounts (id, user_id, active) VALUES ($1, 'user-1', TRUE)`, id)
	s.Require().NoError(err)
}

func (s *PostgresIntegrationSuite) seedCredential(accountID string, expiresAt time.Time) {
	err := NewCredentialStore(s.db).Upsert(s.ctx, &domain.Credential{
		AccountID:             accountID,
		AccessTokenEncrypted:  "enc-access",
		RefreshTokenEncrypted: ptr("enc-refresh"),
		ExpiresAt:             expiresAt,
	})
	s.Require().NoError(err)
}

func (s *PostgresIntegrationSuite) TestAccountStore_GetWithCredentialExpiry() {
	store := NewAccountStore(s.db)
	expiry := time.Now().Add(time.Hour).Truncate(time.Microsecond)

	s.seedAccount("acct-1")
	s.seedCredential("acct-1", expiry)

	account, err := store.Get(s.ctx, "acct-1")
	s.NoError(err)
	s.Equal("acct-1", account.ID)
	s.True(account.Active)
	s.WithinDuration(expiry, account.TokenExpiresAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestAccountStore_GetWithoutCredential() {
	store := NewAccountStore(s.db)
	s.seedAccount("acct-1")

	account, err := store.Get(s.ctx, "acct-1")
	s.NoError(err)
	s.Equal(time.Unix(0, 0).UTC(), account.TokenExpiresAt.UTC())
}

func (s *PostgresIntegrationSuite) TestAccountStore_GetNotFound() {
	_, err := NewAccountStore(s.db).Get(s.ctx, "ghost")
	s.ErrorIs(err, domain.ErrAccountNotFound)
}

func (s *PostgresIntegrationSuite) TestAccountStore_SetActive() {
	store := NewAccountStore(s.db)
	s.seedAccount("acct-1")

	s.NoError(store.SetActive(s.ctx, "acct-1", false))

	account, err := store.Get(s.ctx, "acct-1")
	s.NoError(err)
	s.False(account.Active)

	s.ErrorIs(store.SetActive(s.ctx, "ghost", false), domain.ErrAccountNotFound)
}

func (s *PostgresIntegrationSuite) TestAccountStore_ListExpiringWithin() {
	store := NewAccountStore(s.db)
	now := time.Now()

	s.seedAccount("acct-soon")
	s.seedCredential("acct-soon", now.Add(time.Hour))
	s.seedAccount("acct-later")
	s.seedCredential("acct-later", now.Add(72*time.Hour))
	s.seedAccount("acct-inactive")
	s.seedCredential("acct-inactive", now.Add(time.Hour))
	s.Require().NoError(store.SetActive(s.ctx, "acct-inactive", false))
	s.seedAccount("acct-no-cred")

	accounts, err := store.ListExpiringWithin(s.ctx, now.Add(24*time.Hour))
	s.NoError(err)
	s.Len(accounts, 1)
	s.Equal("acct-soon", accounts[0].ID)
}

func (s *PostgresIntegrationSuite) TestAccountStore_ListActiveIDs() {
	store := NewAccountStore(s.db)
	s.seedAccount("acct-a")
	s.seedAccount("acct-b")
	s.Require().NoError(store.SetActive(s.ctx, "acct-b", false))

	ids, err := store.ListActiveIDs(s.ctx)
	s.NoError(err)
	s.Equal([]string{"acct-a"}, ids)
}

func (s *PostgresIntegrationSuite) TestCredentialStore_GetMissing() {
	s.seedAccount("acct-1")
	_, err := NewCredentialStore(s.db).Get(s.ctx, "acct-1")
	s.ErrorIs(err, domain.ErrNoCredential)
}

func (s *PostgresIntegrationSuite) TestCredentialStore_UpsertReplaces() {
	store := NewCredentialStore(s.db)
	s.seedAccount("acct-1")
	s.seedCredential("acct-1", time.Now().Add(time.Hour))

	err := store.Upsert(s.ctx, &domain.Credential{
		AccountID:             "acct-1",
		AccessTokenEncrypted:  "enc-access-2",
		RefreshTokenEncrypted: ptr("enc-refresh-2"),
		ExpiresAt:             time.Now().Add(2 * time.Hour),
	})
	s.NoError(err)

	cred, err := store.Get(s.ctx, "acct-1")
	s.NoError(err)
	s.Equal("enc-access-2", cred.AccessTokenEncrypted)
	s.Equal("enc-refresh-2", *cred.RefreshTokenEncrypted)
}

func (s *PostgresIntegrationSuite) TestCredentialStore_UpdateTokensCompareAndSet() {
	store := NewCredentialStore(s.db)
	expiry := time.Now().Add(time.Hour).Truncate(time.Microsecond)

	s.seedAccount("acct-1")
	s.seedCredential("acct-1", expiry)

	cred, err := store.Get(s.ctx, "acct-1")
	s.Require().NoError(err)

	newExpiry := time.Now().Add(2 * time.Hour)
	err = store.UpdateTokens(s.ctx, "acct-1", "enc-access-new", nil, newExpiry, cred.ExpiresAt)
	s.NoError(err)

	updated, err := store.Get(s.ctx, "acct-1")
	s.NoError(err)
	s.Equal("enc-access-new", updated.AccessTokenEncrypted)
	s.Equal("enc-refresh", *updated.RefreshTokenEncrypted, "nil refresh keeps the stored one")

	// Second writer still holding the old expiry loses the race.
	err = store.UpdateTokens(s.ctx, "acct-1", "enc-access-loser", nil, time.Now().Add(3*time.Hour), cred.ExpiresAt)
	s.ErrorIs(err, domain.ErrStaleCredential)

	final, err := store.Get(s.ctx, "acct-1")
	s.NoError(err)
	s.Equal("enc-access-new", final.AccessTokenEncrypted)
}

func (s *PostgresIntegrationSuite) TestJobStore_CreateAndGet() {
	store := NewJobStore(s.db)
	s.seedAccount("acct-1")

	job := &domain.SyncJob{
		ID:        "job-1",
		AccountID: "acct-1",
		UserID:    "user-1",
		Scope:     domain.ScopeFull,
		Status:    domain.JobQueued,
	}
	s.NoError(store.Create(s.ctx, job))

	got, err := store.Get(s.ctx, "job-1")
	s.NoError(err)
	s.Equal(domain.JobQueued, got.Status)
	s.Equal(domain.ScopeFull, got.Scope)

	_, err = store.Get(s.ctx, "ghost")
	s.ErrorIs(err, domain.ErrJobNotFound)
}

func (s *PostgresIntegrationSuite) TestJobStore_InFlightIndexRejectsDuplicate() {
	store := NewJobStore(s.db)
	s.seedAccount("acct-1")

	first := &domain.SyncJob{ID: "job-1", AccountID: "acct-1", UserID: "user-1", Scope: domain.ScopeFull, Status: domain.JobQueued}
	s.Require().NoError(store.Create(s.ctx, first))

	dup := &domain.SyncJob{ID: "job-2", AccountID: "acct-1", UserID: "user-1", Scope: domain.ScopeFull, Status: domain.JobQueued}
	s.ErrorIs(store.Create(s.ctx, dup), domain.ErrJobConflict)

	// Different scope is fine.
	other := &domain.SyncJob{ID: "job-3", AccountID: "acct-1", UserID: "user-1", Scope: domain.ScopeReviews, Status: domain.JobQueued}
	s.NoError(store.Create(s.ctx, other))

	// Once the first job is terminal the slot frees up.
	s.Require().NoError(store.Transition(s.ctx, "job-1", domain.JobQueued, domain.JobFailed, ptr("gave up")))
	again := &domain.SyncJob{ID: "job-4", AccountID: "acct-1", UserID: "user-1", Scope: domain.ScopeFull, Status: domain.JobQueued}
	s.NoError(store.Create(s.ctx, again))
}

func (s *PostgresIntegrationSuite) TestJobStore_FindNonTerminal() {
	store := NewJobStore(s.db)
	s.seedAccount("acct-1")

	found, err := store.FindNonTerminal(s.ctx, "acct-1", domain.ScopeFull)
	s.NoError(err)
	s.Nil(found)

	job := &domain.SyncJob{ID: "job-1", AccountID: "acct-1", UserID: "user-1", Scope: domain.ScopeFull, Status: domain.JobQueued}
	s.Require().NoError(store.Create(s.ctx, job))

	found, err = store.FindNonTerminal(s.ctx, "acct-1", domain.ScopeFull)
	s.NoError(err)
	s.Require().NotNil(found)
	s.Equal("job-1", found.ID)

	s.Require().NoError(store.Transition(s.ctx, "job-1", domain.JobQueued, domain.JobCompleted, nil))
	found, err = store.FindNonTerminal(s.ctx, "acct-1", domain.ScopeFull)
	s.NoError(err)
	s.Nil(found)
}

func (s *PostgresIntegrationSuite) TestJobStore_TransitionCompareAndSet() {
	store := NewJobStore(s.db)
	s.seedAccount("acct-1")

	job := &domain.SyncJob{ID: "job-1", AccountID: "acct-1", UserID: "user-1", Scope: domain.ScopeFull, Status: domain.JobQueued}
	s.Require().NoError(store.Create(s.ctx, job))

	s.NoError(store.Transition(s.ctx, "job-1", domain.JobQueued, domain.JobRunning, nil))
	s.ErrorIs(store.Transition(s.ctx, "job-1", domain.JobQueued, domain.JobRunning, nil), domain.ErrJobConflict)

	msg := "fetch locations: boom"
	s.NoError(store.Transition(s.ctx, "job-1", domain.JobRunning, domain.JobFailed, &msg))

	got, err := store.Get(s.ctx, "job-1")
	s.NoError(err)
	s.Equal(domain.JobFailed, got.Status)
	s.Require().NotNil(got.Error)
	s.Equal(msg, *got.Error)
}

func (s *PostgresIntegrationSuite) samplePayload(accountID string) *domain.SyncPayload {
	now := time.Now().Truncate(time.Microsecond)
	return &domain.SyncPayload{
		Locations: []domain.LocationRecord{
			{AccountID: accountID, ExternalID: "loc-1", Title: "Main Street", Address: ptr("1 Main St")},
			{AccountID: accountID, ExternalID: "loc-2", Title: "Harbor"},
		},
		Reviews: []domain.ReviewRecord{
			{AccountID: accountID, ExternalID: "rev-1", LocationExternalID: "loc-1", Reviewer: "Alice", Rating: 4, Comment: ptr("Great"), CreateTime: now, UpdateTime: now},
			{AccountID: accountID, ExternalID: "rev-2", LocationExternalID: "loc-2", Reviewer: "Bob", Rating: 5, CreateTime: now, UpdateTime: now},
		},
		Questions: []domain.QuestionRecord{
			{AccountID: accountID, ExternalID: "q-1", LocationExternalID: "loc-1", Author: "Carol", Text: "Open Sundays?", Answered: true, AnswerText: ptr("Yes"), CreateTime: now},
		},
	}
}

func (s *PostgresIntegrationSuite) commit(payload *domain.SyncPayload) {
	tm := NewTransactionManager(s.db)
	store := NewResourceStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := store.UpsertLocations(ctx, payload.Locations); err != nil {
			return err
		}
		if _, err := store.UpsertReviews(ctx, payload.Reviews); err != nil {
			return err
		}
		_, err := store.UpsertQuestions(ctx, payload.Questions)
		return err
	})
	s.Require().NoError(err)
}

func (s *PostgresIntegrationSuite) rowCounts() (locations, reviews, questions int) {
	s.Require().NoError(s.db.GetContext(s.ctx, &locations, "SELECT COUNT(*) FROM locations"))
	s.Require().NoError(s.db.GetContext(s.ctx, &reviews, "SELECT COUNT(*) FROM reviews"))
	s.Require().NoError(s.db.GetContext(s.ctx, &questions, "SELECT COUNT(*) FROM questions"))
	return
}

func (s *PostgresIntegrationSuite) TestResourceStore_CommitIsIdempotent() {
	s.seedAccount("acct-1")
	payload := s.samplePayload("acct-1")

	s.commit(payload)
	locations, reviews, questions := s.rowCounts()
	s.Equal(2, locations)
	s.Equal(2, reviews)
	s.Equal(1, questions)

	// Re-running the identical payload changes nothing but last_synced_at.
	s.commit(payload)
	locations, reviews, questions = s.rowCounts()
	s.Equal(2, locations)
	s.Equal(2, reviews)
	s.Equal(1, questions)
}

func (s *PostgresIntegrationSuite) TestResourceStore_UpsertUpdatesChangedFields() {
	s.seedAccount("acct-1")
	payload := s.samplePayload("acct-1")
	s.commit(payload)

	payload.Reviews[0].Rating = 2
	payload.Reviews[0].ReplyText = ptr("Sorry to hear that")
	s.commit(payload)

	var rating int
	var reply string
	s.NoError(s.db.GetContext(s.ctx, &rating,
		"SELECT rating FROM reviews WHERE account_id = 'acct-1' AND external_id = 'rev-1'"))
	s.NoError(s.db.GetContext(s.ctx, &reply,
		"SELECT reply_text FROM reviews WHERE account_id = 'acct-1' AND external_id = 'rev-1'"))
	s.Equal(2, rating)
	s.Equal("Sorry to hear that", reply)
}

func (s *PostgresIntegrationSuite) TestResourceStore_AbsentRowsAreKept() {
	s.seedAccount("acct-1")
	s.commit(s.samplePayload("acct-1"))

	// A later fetch returning fewer rows must not delete anything.
	s.commit(&domain.SyncPayload{
		Locations: []domain.LocationRecord{
			{AccountID: "acct-1", ExternalID: "loc-1", Title: "Main Street Renamed"},
		},
	})

	locations, reviews, questions := s.rowCounts()
	s.Equal(2, locations)
	s.Equal(2, reviews)
	s.Equal(1, questions)

	var title string
	s.NoError(s.db.GetContext(s.ctx, &title,
		"SELECT title FROM locations WHERE account_id = 'acct-1' AND external_id = 'loc-1'"))
	s.Equal("Main Street Renamed", title)
}

func (s *PostgresIntegrationSuite) TestTransaction_RollbackLeavesNothing() {
	s.seedAccount("acct-1")
	tm := NewTransactionManager(s.db)
	store := NewResourceStore(s.db)
	payload := s.samplePayload("acct-1")

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, err := store.UpsertLocations(ctx, payload.Locations); err != nil {
			return err
		}
		// Review referencing a location that is not part of this commit.
		_, err := store.UpsertReviews(ctx, []domain.ReviewRecord{
			{AccountID: "acct-1", ExternalID: "rev-bad", LocationExternalID: "ghost"},
		})
		return err
	})
	s.Error(err)

	locations, reviews, _ := s.rowCounts()
	s.Equal(0, locations, "locations from the failed transaction are rolled back")
	s.Equal(0, reviews)
}
