package postgres

import (
	"context"
	"encoding/json"

	"aria/internal/coreerr"
	"aria/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExpertDescriptorStore is a pgx-backed storage.ExpertDescriptorStore.
type ExpertDescriptorStore struct {
	pool *pgxpool.Pool
}

func NewExpertDescriptorStore(pool *pgxpool.Pool) *ExpertDescriptorStore {
	return &ExpertDescriptorStore{pool: pool}
}

func (s *ExpertDescriptorStore) List(ctx context.Context) ([]storage.ExpertDescriptor, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, capabilities, pattern_hints, default_confidence FROM expert_descriptors ORDER BY name`)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	defer rows.Close()

	var out []storage.ExpertDescriptor
	for rows.Next() {
		var d storage.ExpertDescriptor
		var caps, hints []byte
		if err := rows.Scan(&d.Name, &caps, &hints, &d.DefaultConfidence); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		if err := json.Unmarshal(caps, &d.Capabilities); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		if err := json.Unmarshal(hints, &d.PatternHints); err != nil {
			return nil, coreerr.Wrap(coreerr.Internal, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, coreerr.Wrap(coreerr.Internal, err)
	}
	return out, nil
}

func (s *ExpertDescriptorStore) Upsert(ctx context.Context, d storage.ExpertDescriptor) error {
	caps, err := json.Marshal(d.Capabilities)
	if err != nil {
		return coreerr.Wrap(coreerr.Invalid, err)
	}
	hints, err := json.Marshal(d.PatternHints)
	if err != nil {
		return coreerr.Wrap(coreerr.Invalid, err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO expert_descriptors (name, capabilities, pattern_hints, default_confidence)
VALUES ($1,$2,$3,$4)
ON CONFLICT (name) DO UPDATE SET capabilities=$2, pattern_hints=$3, default_confidence=$4`,
		d.Name, caps, hints, d.DefaultConfidence)
	if err != nil {
		return coreerr.Wrap(coreerr.Internal, err)
	}
	return nil
}
