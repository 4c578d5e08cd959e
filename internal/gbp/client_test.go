package gbp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client := New(Config{
		BaseURL:      server.URL,
		PageSize:     2,
		Timeout:      5 * time.Second,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     server.URL + "/token",
	}, logger)
	return client, server
}

func TestListLocations_Pagination(t *testing.T) {
	var requests int
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "/accounts/acct-1/locations", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("pageToken") {
		case "":
			fmt.Fprint(w, `{
				"locations": [
					{"name": "accounts/acct-1/locations/101", "title": "Main Street",
					 "storefrontAddress": {"addressLines": ["1 Main St"], "locality": "Springfield", "postalCode": "12345"}},
					{"name": "accounts/acct-1/locations/102", "title": "Harbor"}
				],
				"nextPageToken": "page-2"
			}`)
		case "page-2":
			fmt.Fprint(w, `{
				"locations": [
					{"name": "accounts/acct-1/locations/103", "title": "Airport"}
				]
			}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))

	locations, err := client.ListLocations(context.Background(), "tok", "acct-1")

	require.NoError(t, err)
	assert.Equal(t, 2, requests)
	require.Len(t, locations, 3)

	assert.Equal(t, "101", locations[0].ExternalID)
	assert.Equal(t, "Main Street", locations[0].Title)
	require.NotNil(t, locations[0].Address)
	assert.Equal(t, "1 Main St, Springfield, 12345", *locations[0].Address)

	assert.Equal(t, "102", locations[1].ExternalID)
	assert.Nil(t, locations[1].Address)
	assert.Equal(t, "103", locations[2].ExternalID)
}

func TestListLocations_PageFailureAborts(t *testing.T) {
	var requests int
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"locations": [{"name": "accounts/a/locations/1", "title": "One"}], "nextPageToken": "p2"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ListLocations(context.Background(), "tok", "acct-1")

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestListReviews_Normalization(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/locations/loc-1/reviews", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"reviews": [
				{"name": "accounts/a/locations/loc-1/reviews/r1",
				 "reviewer": {"displayName": "Alice"},
				 "starRating": "STAR_FOUR",
				 "comment": "Great",
				 "createTime": "2026-01-02T03:04:05Z",
				 "updateTime": "2026-01-03T03:04:05Z",
				 "reviewReply": {"comment": "Thanks!"}},
				{"name": "accounts/a/locations/loc-1/reviews/r2",
				 "reviewer": {"displayName": "Bob"},
				 "starRating": 2},
				{"name": "",
				 "starRating": 5}
			]
		}`)
	}))

	reviews, err := client.ListReviews(context.Background(), "tok", "acct-1", "loc-1")

	require.NoError(t, err)
	require.Len(t, reviews, 2, "the entry without an ID is dropped")

	first := reviews[0]
	assert.Equal(t, "r1", first.ExternalID)
	assert.Equal(t, "loc-1", first.LocationExternalID)
	assert.Equal(t, "Alice", first.Reviewer)
	assert.Equal(t, 4, first.Rating)
	require.NotNil(t, first.Comment)
	assert.Equal(t, "Great", *first.Comment)
	require.NotNil(t, first.ReplyText)
	assert.Equal(t, "Thanks!", *first.ReplyText)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), first.CreateTime)

	second := reviews[1]
	assert.Equal(t, 2, second.Rating)
	assert.Nil(t, second.ReplyText)
}

func TestListQuestions_AnsweredDerivation(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/locations/loc-1/questions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"questions": [
				{"name": "locations/loc-1/questions/q1",
				 "author": {"displayName": "Carol"},
				 "text": "Open on Sundays?",
				 "topAnswer": {"text": "Yes, 10-4."},
				 "createTime": "2026-02-01T00:00:00Z"},
				{"name": "locations/loc-1/questions/q2",
				 "author": {"displayName": "Dave"},
				 "text": "Parking?",
				 "topAnswer": {"text": ""}},
				{"name": "locations/loc-1/questions/q3",
				 "text": "Wifi?"}
			]
		}`)
	}))

	questions, err := client.ListQuestions(context.Background(), "tok", "acct-1", "loc-1")

	require.NoError(t, err)
	require.Len(t, questions, 3)

	assert.True(t, questions[0].Answered)
	require.NotNil(t, questions[0].AnswerText)
	assert.Equal(t, "Yes, 10-4.", *questions[0].AnswerText)

	assert.False(t, questions[1].Answered, "empty answer text does not count as answered")
	assert.Nil(t, questions[1].AnswerText)

	assert.False(t, questions[2].Answered)
}

func TestDoGet_StatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		reauth    bool
		transient bool
	}{
		{"unauthorized", http.StatusUnauthorized, true, false},
		{"forbidden", http.StatusForbidden, true, false},
		{"throttled", http.StatusTooManyRequests, false, true},
		{"server error", http.StatusBadGateway, false, true},
		{"not found", http.StatusNotFound, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))

			_, err := client.ListLocations(context.Background(), "tok", "acct-1")

			require.Error(t, err)
			assert.Equal(t, tc.reauth, errors.Is(err, domain.ErrReauthRequired))
			assert.Equal(t, tc.transient, domain.IsTransient(err))
		})
	}
}

func TestRefreshToken_Success(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "new-access", "token_type": "Bearer", "expires_in": 3600}`)
	}))

	tok, err := client.RefreshToken(context.Background(), "old-refresh")

	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
}

func TestRefreshToken_InvalidGrant(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "invalid_grant", "error_description": "Token has been revoked."}`)
	}))

	_, err := client.RefreshToken(context.Background(), "revoked")

	require.ErrorIs(t, err, domain.ErrReauthRequired)
}

func TestRefreshToken_ServerErrorIsTransient(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := client.RefreshToken(context.Background(), "old-refresh")

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}
