package gbp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

// Config holds Business Profile API client configuration.
type Config struct {
	BaseURL      string
	PageSize     int
	Timeout      time.Duration
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Client talks to the Business Profile API: three cursor-paginated read
// endpoints plus the OAuth token refresh endpoint. Responses are
// normalized into domain records here; untyped payloads never leave this
// package.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	oauth      *oauth2.Config
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:  cfg.BaseURL,
		pageSize: cfg.PageSize,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: cfg.TokenURL,
			},
		},
		logger: logger.With("component", "gbp"),
	}
}

// ListLocations pages through all locations of an account. Any page
// failure aborts the listing: locations are load-bearing for everything
// downstream.
func (c *Client) ListLocations(ctx context.Context, accessToken, accountID string) ([]domain.LocationRecord, error) {
	var records []domain.LocationRecord
	pageToken := ""

	for {
		endpoint := fmt.Sprintf("%s/accounts/%s/locations", c.baseURL, url.PathEscape(accountID))

		var resp locationsResponse
		if err := c.doGet(ctx, accessToken, endpoint, pageToken, &resp); err != nil {
			return nil, fmt.Errorf("list locations: %w", err)
		}

		for _, loc := range resp.Locations {
			id := externalID(loc.Name)
			if id == "" {
				c.logger.Warn("dropping location without id", "name", loc.Name)
				continue
			}
			records = append(records, domain.LocationRecord{
				AccountID:    accountID,
				ExternalID:   id,
				Title:        loc.Title,
				Address:      formatAddress(loc.Address),
				PrimaryPhone: loc.PrimaryPhone,
				WebsiteURL:   loc.WebsiteURI,
			})
		}

		if resp.NextPageToken == "" {
			return records, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListReviews pages through one location's reviews. Malformed entries
// without a stable ID are dropped rather than failing the batch.
func (c *Client) ListReviews(ctx context.Context, accessToken, accountID, locationID string) ([]domain.ReviewRecord, error) {
	var records []domain.ReviewRecord
	pageToken := ""

	for {
		endpoint := fmt.Sprintf("%s/locations/%s/reviews", c.baseURL, url.PathEscape(locationID))

		var resp reviewsResponse
		if err := c.doGet(ctx, accessToken, endpoint, pageToken, &resp); err != nil {
			return nil, fmt.Errorf("list reviews for %s: %w", locationID, err)
		}

		for _, rv := range resp.Reviews {
			id := externalID(rv.Name)
			if id == "" {
				c.logger.Warn("dropping review without id", "location", locationID)
				continue
			}
			rec := domain.ReviewRecord{
				AccountID:          accountID,
				ExternalID:         id,
				LocationExternalID: locationID,
				Reviewer:           rv.Reviewer.DisplayName,
				Rating:             parseStarRating(rv.StarRating),
				Comment:            rv.Comment,
				CreateTime:         parseTime(rv.CreateTime),
				UpdateTime:         parseTime(rv.UpdateTime),
			}
			if rv.Reply != nil && rv.Reply.Comment != "" {
				reply := rv.Reply.Comment
				rec.ReplyText = &reply
			}
			records = append(records, rec)
		}

		if resp.NextPageToken == "" {
			return records, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListQuestions pages through one location's questions. A question counts
// as answered only when a top-level answer with non-empty text is present.
func (c *Client) ListQuestions(ctx context.Context, accessToken, accountID, locationID string) ([]domain.QuestionRecord, error) {
	var records []domain.QuestionRecord
	pageToken := ""

	for {
		endpoint := fmt.Sprintf("%s/locations/%s/questions", c.baseURL, url.PathEscape(locationID))

		var resp questionsResponse
		if err := c.doGet(ctx, accessToken, endpoint, pageToken, &resp); err != nil {
			return nil, fmt.Errorf("list questions for %s: %w", locationID, err)
		}

		for _, q := range resp.Questions {
			id := externalID(q.Name)
			if id == "" {
				c.logger.Warn("dropping question without id", "location", locationID)
				continue
			}
			rec := domain.QuestionRecord{
				AccountID:          accountID,
				ExternalID:         id,
				LocationExternalID: locationID,
				Author:             q.Author.DisplayName,
				Text:               q.Text,
				CreateTime:         parseTime(q.CreateTime),
			}
			if q.TopAnswer != nil && q.TopAnswer.Text != "" {
				answer := q.TopAnswer.Text
				rec.Answered = true
				rec.AnswerText = &answer
			}
			records = append(records, rec)
		}

		if resp.NextPageToken == "" {
			return records, nil
		}
		pageToken = resp.NextPageToken
	}
}

// RefreshToken exchanges a refresh token for a fresh access token.
// An invalid_grant response means the consent was revoked; that maps to
// ErrReauthRequired so callers deactivate the account instead of retrying.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) {
			if rerr.ErrorCode == "invalid_grant" {
				return nil, fmt.Errorf("refresh rejected: %w", domain.ErrReauthRequired)
			}
			if rerr.Response != nil && rerr.Response.StatusCode >= http.StatusInternalServerError {
				return nil, domain.Transient(fmt.Errorf("token endpoint status %d", rerr.Response.StatusCode))
			}
			return nil, fmt.Errorf("token refresh failed: %w", err)
		}
		return nil, domain.Transient(fmt.Errorf("token refresh: %w", err))
	}
	return tok, nil
}

func (c *Client) doGet(ctx context.Context, accessToken, endpoint, pageToken string, out any) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("pageSize", fmt.Sprint(c.pageSize))
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Transient(fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrReauthRequired)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return domain.Transient(fmt.Errorf("unexpected status: %d", resp.StatusCode))
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
