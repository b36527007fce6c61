// Package postgres implements storage.* repositories on pgx, mirroring the
// teacher's internal/persistence/databases postgres stores.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool opens a connection pool against dsn with the teacher's
// conservative sizing (§5's bounded connection pool requirement), pinging
// once before returning.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 32
	cfg.MinConns = 8
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Init creates every table the core owns, idempotently.
func Init(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    context_type TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    last_activity_at TIMESTAMPTZ NOT NULL,
    status TEXT NOT NULL,
    timeout_minutes INTEGER NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS episodes_user_context_status_idx ON episodes(user_id, context_type, status);
CREATE INDEX IF NOT EXISTS episodes_status_activity_idx ON episodes(status, last_activity_at);

CREATE TABLE IF NOT EXISTS turns (
    id TEXT PRIMARY KEY,
    episode_id TEXT NOT NULL REFERENCES episodes(id) ON DELETE CASCADE,
    user_text TEXT NOT NULL,
    assistant_text TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS turns_episode_created_idx ON turns(episode_id, created_at);

CREATE TABLE IF NOT EXISTS memory_facts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    subject_kind TEXT NOT NULL,
    subject_id TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    importance DOUBLE PRECISION NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_accessed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    access_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS memory_facts_user_idx ON memory_facts(user_id);
CREATE INDEX IF NOT EXISTS memory_facts_text_fts_idx ON memory_facts USING GIN (to_tsvector('english', text));

CREATE TABLE IF NOT EXISTS action_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    tool_name TEXT NOT NULL,
    tool_params JSONB NOT NULL DEFAULT '{}',
    success BOOLEAN NOT NULL,
    timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    context JSONB NOT NULL DEFAULT '{}',
    session_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS action_logs_user_timestamp_idx ON action_logs(user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS action_logs_tool_timestamp_idx ON action_logs(tool_name, timestamp DESC);

CREATE TABLE IF NOT EXISTS interactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    request_text TEXT NOT NULL,
    response_text TEXT NOT NULL,
    response_time_ms BIGINT NOT NULL DEFAULT 0,
    task_completed BOOLEAN NOT NULL DEFAULT FALSE,
    follow_up_in_60s BOOLEAN NOT NULL DEFAULT FALSE,
    engagement_duration_ms BIGINT NOT NULL DEFAULT 0,
    context JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS interactions_user_created_idx ON interactions(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS feedback (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    interaction_id TEXT NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    value DOUBLE PRECISION NOT NULL DEFAULT 0,
    text TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS feedback_interaction_idx ON feedback(interaction_id);

CREATE TABLE IF NOT EXISTS expert_descriptors (
    name TEXT PRIMARY KEY,
    capabilities JSONB NOT NULL DEFAULT '[]',
    pattern_hints JSONB NOT NULL DEFAULT '[]',
    default_confidence DOUBLE PRECISION NOT NULL DEFAULT 0
);
`)
	return err
}
