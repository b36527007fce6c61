package postgres

import (
	"context"
	"strings"
	"time"

	"aria/internal/coreerr"
	"aria/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MemoryFactStore is a pgx-backed storage.MemoryFactStore. Ranking combines a
// Postgres full-text match with the §3 decay-weighted score computed in Go,
// since the decay term depends on wall-clock age at query time.
type MemoryFactStore struct {
	pool *pgxpool.Pool
}

func NewMemoryFactStore(pool *pgxpool.Pool) *MemoryFactStore {
	return &MemoryFactStore{pool: pool}
}

func (s *MemoryFactStore) Create(ctx context.Context, f storage.MemoryFact) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO memory_facts (id, user_id, subject_kind, subject_id, text, importance, created_at, last_accessed_at, access_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING`,
		f.ID, f.UserID, string(f.SubjectKind), f.SubjectID, f.Text, f.Importance, f.CreatedAt, f.LastAccessedAt, f.AccessCount)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}

func (s *MemoryFactStore) Search(ctx context.Context, userID string, query string, limit int) ([]storage.MemoryFact, error) {
	// plainto_tsquery/websearch_to_tsquery AND every bare word together by
	// default, so a multi-word recall query ("what kind of milk do I like")
	// would require the stored fact to contain every term — it almost never
	// does. Joining the filtered terms with " OR " turns this into the
	// OR-of-keywords match §3 calls for ("full-text search over text"),
	// matching the in-memory backend's storage.SearchTerms relevance rule.
	terms := storage.SearchTerms(query)
	tsQuery := strings.Join(terms, " OR ")

	// Full-text filter narrows the candidate set; final ranking applies the
	// decay formula from §3 in Go since it depends on query-time age.
	rows, err := s.pool.Query(ctx, `
SELECT id, user_id, subject_kind, subject_id, text, importance, created_at, last_accessed_at, access_count
FROM memory_facts
WHERE user_id = $1 AND ($2 = '' OR to_tsvector('english', text) @@ websearch_to_tsquery('english', $2))`,
		userID, tsQuery)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	defer rows.Close()

	var all []storage.MemoryFact
	for rows.Next() {
		var f storage.MemoryFact
		var subjectKind string
		if err := rows.Scan(&f.ID, &f.UserID, &subjectKind, &f.SubjectID, &f.Text, &f.Importance, &f.CreatedAt, &f.LastAccessedAt, &f.AccessCount); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		f.SubjectKind = storage.SubjectKind(subjectKind)
		all = append(all, f)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}

	storage.RankByDecay(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryFactStore) BumpAccess(ctx context.Context, factID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE memory_facts SET access_count = access_count + 1, last_accessed_at = $2 WHERE id = $1`, factID, at)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	if tag.RowsAffected() == 0 {
		return coreerr.New(coreerr.NotFound, "memory fact not found")
	}
	return nil
}
