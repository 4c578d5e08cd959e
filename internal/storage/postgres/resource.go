package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/NN224/NNH-AI-Studio-sub005/internal/domain"
)

// ResourceStore upserts synchronized locations, reviews and questions.
// All methods honor a transaction carried in the context, so the
// coordinator can commit the three collections as one unit. Rows absent
// from a fetch are left in place: sync is additive, not reconciling.
type ResourceStore struct {
	db *sqlx.DB
}

func NewResourceStore(db *sqlx.DB) *ResourceStore {
	return &ResourceStore{db: db}
}

func (s *ResourceStore) UpsertLocations(ctx context.Context, locations []domain.LocationRecord) (int, error) {
	if len(locations) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO locations
		(account_id, external_id, title, address, primary_phone, website_url, last_synced_at)
		VALUES `)
	args := make([]interface{}, 0, len(locations)*6)

	for i, loc := range locations {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, now())",
			base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, loc.AccountID, loc.ExternalID, loc.Title, loc.Address, loc.PrimaryPhone, loc.WebsiteURL)
	}
	sb.WriteString(` ON CONFLICT (account_id, external_id) DO UPDATE SET
		title = EXCLUDED.title,
		address = EXCLUDED.address,
		primary_phone = EXCLUDED.primary_phone,
		website_url = EXCLUDED.website_url,
		last_synced_at = now()`)

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...); err != nil {
		return 0, classify(fmt.Errorf("upsert locations: %w", err))
	}
	return len(locations), nil
}

func (s *ResourceStore) UpsertReviews(ctx context.Context, reviews []domain.ReviewRecord) (int, error) {
	if len(reviews) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO reviews
		(account_id, external_id, location_external_id, reviewer, rating, comment, reply_text, create_time, update_time, last_synced_at)
		VALUES `)
	args := make([]interface{}, 0, len(reviews)*9)

	for i, rv := range reviews {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 9
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, now())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9)
		args = append(args,
			rv.AccountID, rv.ExternalID, rv.LocationExternalID, rv.Reviewer,
			rv.Rating, rv.Comment, rv.ReplyText, rv.CreateTime, rv.UpdateTime)
	}
	sb.WriteString(` ON CONFLICT (account_id, external_id) DO UPDATE SET
		reviewer = EXCLUDED.reviewer,
		rating = EXCLUDED.rating,
		comment = EXCLUDED.comment,
		reply_text = EXCLUDED.reply_text,
		update_time = EXCLUDED.update_time,
		last_synced_at = now()`)

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...); err != nil {
		return 0, classify(fmt.Errorf("upsert reviews: %w", err))
	}
	return len(reviews), nil
}

func (s *ResourceStore) UpsertQuestions(ctx context.Context, questions []domain.QuestionRecord) (int, error) {
	if len(questions) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO questions
		(account_id, external_id, location_external_id, author, text, answered, answer_text, create_time, last_synced_at)
		VALUES `)
	args := make([]interface{}, 0, len(questions)*8)

	for i, q := range questions {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 8
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, now())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args,
			q.AccountID, q.ExternalID, q.LocationExternalID, q.Author,
			q.Text, q.Answered, q.AnswerText, q.CreateTime)
	}
	sb.WriteString(` ON CONFLICT (account_id, external_id) DO UPDATE SET
		author = EXCLUDED.author,
		text = EXCLUDED.text,
		answered = EXCLUDED.answered,
		answer_text = EXCLUDED.answer_text,
		last_synced_at = now()`)

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...); err != nil {
		return 0, classify(fmt.Errorf("upsert questions: %w", err))
	}
	return len(questions), nil
}
