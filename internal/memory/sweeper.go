package memory

import (
	"context"
	"time"

	"aria/internal/observability"
	"aria/internal/storage"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically closes episodes that have gone inactive past their
// timeout without a new turn arriving to trigger GetOrOpen's own check
// (§3: "status, last_activity_at" is indexed precisely for this scan).
type Sweeper struct {
	manager *Manager
	store   storage.EpisodeStore
	cron    *cron.Cron
}

// NewSweeper schedules a scan to run on the given cron spec (e.g. every
// minute: "* * * * *").
func NewSweeper(manager *Manager, store storage.EpisodeStore, spec string) (*Sweeper, error) {
	s := &Sweeper{manager: manager, store: store, cron: cron.New()}
	if _, err := s.cron.AddFunc(spec, s.sweepOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() { s.cron.Start() }
func (s *Sweeper) Stop()  { <-s.cron.Stop().Done() }

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	logger := observability.LoggerWithTrace(ctx)

	for ct, timeout := range s.manager.timeouts {
		stale, err := s.staleEpisodes(ctx, ct, timeout)
		if err != nil {
			logger.Warn().Err(err).Str("context_type", string(ct)).Msg("episode sweep scan failed")
			continue
		}
		for _, ep := range stale {
			ep := ep
			release, err := s.manager.lock.acquire(ctx, s.manager.lockKey(ep.UserID, ep.ContextType))
			if err != nil {
				logger.Warn().Err(err).Str("episode_id", ep.ID).Msg("could not acquire episode lock for sweep")
				continue
			}
			// Re-check freshness under the lock: a turn may have arrived
			// and bumped last_activity_at between the scan above and
			// acquiring the lock here.
			fresh, err := s.store.Get(ctx, ep.ID)
			if err != nil || fresh == nil || fresh.Status != storage.EpisodeActive || !fresh.LastActivityAt.Before(time.Now().UTC().Add(-timeout)) {
				release()
				continue
			}
			if err := s.manager.closeLocked(ctx, fresh); err != nil {
				logger.Warn().Err(err).Str("episode_id", ep.ID).Msg("failed to close stale episode")
			}
			release()
		}
	}
}

func (s *Sweeper) staleEpisodes(ctx context.Context, ct storage.ContextType, timeout time.Duration) ([]storage.Episode, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	return s.store.ActiveOlderThan(ctx, ct, cutoff)
}
