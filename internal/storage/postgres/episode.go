package postgres

import (
	"context"
	"time"

	"aria/internal/coreerr"
	"aria/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EpisodeStore is a pgx-backed storage.EpisodeStore.
type EpisodeStore struct {
	pool *pgxpool.Pool
}

func NewEpisodeStore(pool *pgxpool.Pool) *EpisodeStore {
	return &EpisodeStore{pool: pool}
}

func (s *EpisodeStore) ActiveByContext(ctx context.Context, userID string, contextType storage.ContextType) (*storage.Episode, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, context_type, started_at, last_activity_at, status, timeout_minutes, message_count, summary
FROM episodes WHERE user_id = $1 AND context_type = $2 AND status = 'active'
LIMIT 1`, userID, string(contextType))
	ep, err := scanEpisode(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return &ep, nil
}

func scanEpisode(row pgx.Row) (storage.Episode, error) {
	var ep storage.Episode
	var contextType, status string
	if err := row.Scan(&ep.ID, &ep.UserID, &contextType, &ep.StartedAt, &ep.LastActivityAt, &status, &ep.TimeoutMinutes, &ep.MessageCount, &ep.Summary); err != nil {
		return storage.Episode{}, err
	}
	ep.ContextType = storage.ContextType(contextType)
	ep.Status = storage.EpisodeStatus(status)
	return ep, nil
}

func (s *EpisodeStore) ActiveOlderThan(ctx context.Context, contextType storage.ContextType, cutoff time.Time) ([]storage.Episode, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, context_type, started_at, last_activity_at, status, timeout_minutes, message_count, summary
FROM episodes WHERE context_type=$1 AND status='active' AND last_activity_at < $2`, string(contextType), cutoff)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	defer rows.Close()

	var out []storage.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		out = append(out, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return out, nil
}

// Create inserts ep inside a transaction that re-verifies the single-
// active-episode invariant (§3 invariant 1) to close the race window
// between a caller's ActiveByContext check and its Create call.
func (s *EpisodeStore) Create(ctx context.Context, ep storage.Episode) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM episodes WHERE user_id=$1 AND context_type=$2 AND status='active' LIMIT 1`,
		ep.UserID, string(ep.ContextType)).Scan(&exists)
	if err == nil {
		return coreerr.New(coreerr.Conflict, "an active episode already exists for this user/context")
	}
	if err != pgx.ErrNoRows {
		return coreerr.Wrap(coreerr.Internal, err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO episodes (id, user_id, context_type, started_at, last_activity_at, status, timeout_minutes, message_count, summary)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ep.ID, ep.UserID, string(ep.ContextType), ep.StartedAt, ep.LastActivityAt, string(ep.Status), ep.TimeoutMinutes, ep.MessageCount, ep.Summary)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

func (s *EpisodeStore) Touch(ctx context.Context, episodeID string, lastActivityAt time.Time, messageCount int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE episodes SET last_activity_at=$1, message_count=$2 WHERE id=$3`, lastActivityAt, messageCount, episodeID)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	if tag.RowsAffected() == 0 {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	return nil
}

func (s *EpisodeStore) UpdateSummary(ctx context.Context, episodeID string, summary string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE episodes SET summary=$2 WHERE id=$1`, episodeID, summary)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	if tag.RowsAffected() == 0 {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	return nil
}

func (s *EpisodeStore) Close(ctx context.Context, episodeID string, summary string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE episodes SET status='closed', summary=COALESCE(NULLIF($2,''), summary) WHERE id=$1`, episodeID, summary)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	if tag.RowsAffected() == 0 {
		return coreerr.New(coreerr.NotFound, "episode not found")
	}
	return nil
}

func (s *EpisodeStore) Get(ctx context.Context, episodeID string) (*storage.Episode, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, user_id, context_type, started_at, last_activity_at, status, timeout_minutes, message_count, summary
FROM episodes WHERE id=$1`, episodeID)
	ep, err := scanEpisode(row)
	if err == pgx.ErrNoRows {
		return nil, coreerr.New(coreerr.NotFound, "episode not found")
	}
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return &ep, nil
}

func (s *EpisodeStore) AppendTurn(ctx context.Context, t storage.Turn) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO turns (id, episode_id, user_text, assistant_text, created_at) VALUES ($1,$2,$3,$4,$5)`,
		t.ID, t.EpisodeID, t.UserText, t.AssistantText, t.CreatedAt)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

func (s *EpisodeStore) RecentTurns(ctx context.Context, episodeID string, k int) ([]storage.Turn, error) {
	if k <= 0 {
		k = 5
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, episode_id, user_text, assistant_text, created_at FROM turns
WHERE episode_id=$1 ORDER BY created_at DESC LIMIT $2`, episodeID, k)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	defer rows.Close()

	var out []storage.Turn
	for rows.Next() {
		var t storage.Turn
		if err := rows.Scan(&t.ID, &t.EpisodeID, &t.UserText, &t.AssistantText, &t.CreatedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return out, nil
}
