package postgres

import (
	"context"
	"time"

	"aria/internal/coreerr"
	"aria/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ActionLogStore is a pgx-backed storage.ActionLogStore.
type ActionLogStore struct {
	pool *pgxpool.Pool
}

func NewActionLogStore(pool *pgxpool.Pool) *ActionLogStore {
	return &ActionLogStore{pool: pool}
}

func (s *ActionLogStore) Append(ctx context.Context, a storage.ActionLog) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO action_logs (id, user_id, tool_name, tool_params, success, timestamp, context, session_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.UserID, a.ToolName, a.ToolParams, a.Success, a.Timestamp, a.Context, a.SessionID)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

func (s *ActionLogStore) Recent(ctx context.Context, userID string, since time.Time) ([]storage.ActionLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, tool_name, tool_params, success, timestamp, context, session_id
FROM action_logs WHERE user_id = $1 AND timestamp > $2 ORDER BY timestamp DESC`, userID, since)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	defer rows.Close()

	var out []storage.ActionLog
	for rows.Next() {
		var a storage.ActionLog
		if err := rows.Scan(&a.ID, &a.UserID, &a.ToolName, &a.ToolParams, &a.Success, &a.Timestamp, &a.Context, &a.SessionID); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return out, nil
}
