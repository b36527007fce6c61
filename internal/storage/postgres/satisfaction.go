package postgres

import (
	"context"

	"aria/internal/coreerr"
	"aria/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SatisfactionStore is a pgx-backed storage.SatisfactionStore.
type SatisfactionStore struct {
	pool *pgxpool.Pool
}

func NewSatisfactionStore(pool *pgxpool.Pool) *SatisfactionStore {
	return &SatisfactionStore{pool: pool}
}

func (s *SatisfactionStore) RecordInteraction(ctx context.Context, i storage.Interaction) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO interactions (id, user_id, request_text, response_text, response_time_ms, task_completed, follow_up_in_60s, engagement_duration_ms, context, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		i.ID, i.UserID, i.RequestText, i.ResponseText, i.ResponseTimeMs, i.TaskCompleted, i.FollowUpIn60s, i.EngagementDurationMs, i.Context, i.CreatedAt)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

func (s *SatisfactionStore) RecordFeedback(ctx context.Context, f storage.Feedback) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO feedback (id, user_id, interaction_id, kind, value, text, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		f.ID, f.UserID, f.InteractionID, string(f.Kind), f.Value, f.Text, f.CreatedAt)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

func (s *SatisfactionStore) Interactions(ctx context.Context, userID string, limit int) ([]storage.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, request_text, response_text, response_time_ms, task_completed, follow_up_in_60s, engagement_duration_ms, context, created_at
FROM interactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	defer rows.Close()

	var out []storage.Interaction
	for rows.Next() {
		var i storage.Interaction
		if err := rows.Scan(&i.ID, &i.UserID, &i.RequestText, &i.ResponseText, &i.ResponseTimeMs, &i.TaskCompleted, &i.FollowUpIn60s, &i.EngagementDurationMs, &i.Context, &i.CreatedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return out, nil
}

func (s *SatisfactionStore) FeedbackForInteraction(ctx context.Context, interactionID string) ([]storage.Feedback, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, interaction_id, kind, value, text, created_at
FROM feedback WHERE interaction_id = $1 ORDER BY created_at ASC`, interactionID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	defer rows.Close()

	var out []storage.Feedback
	for rows.Next() {
		var f storage.Feedback
		var kind string
		if err := rows.Scan(&f.ID, &f.UserID, &f.InteractionID, &kind, &f.Value, &f.Text, &f.CreatedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		f.Kind = storage.FeedbackKind(kind)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return out, nil
}
