package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// episodeLockTTL bounds how long a single episode lock may be held,
// guarding against a crashed holder leaving the lock stuck forever.
const episodeLockTTL = 5 * time.Second

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// episodeLock is the per-(user_id,context_type) advisory lock from §4.E's
// concurrency note, grounded on the teacher's Redis SETNX-style dedupe
// store (internal/orchestrator/dedupe.go) but adapted into a proper
// acquire/release lock: release only succeeds if the caller still holds
// the token, via the same compare-and-delete pattern Redis-based
// distributed locks use.
type episodeLock struct {
	client *redis.Client // nil means single-process local locking only
	local  *localLocker
}

func newEpisodeLock(client *redis.Client) *episodeLock {
	return &episodeLock{client: client, local: newLocalLocker()}
}

// acquire blocks (with backoff) until the lock for key is held or ctx is
// done. It always takes the in-process mutex first so a single replica
// never races itself even when Redis is unavailable; the Redis layer
// additionally serializes across replicas.
func (l *episodeLock) acquire(ctx context.Context, key string) (release func(), err error) {
	unlockLocal := l.local.lock(key)

	if l.client == nil {
		return unlockLocal, nil
	}

	token := uuid.NewString()
	lockKey := "aria:episode-lock:" + key
	deadline := time.Now().Add(episodeLockTTL * 4)
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, episodeLockTTL).Result()
		if err != nil {
			unlockLocal()
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			unlockLocal()
			return nil, context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{lockKey}, token).Err()
		unlockLocal()
	}, nil
}

// localLocker provides per-key mutual exclusion within one process so the
// lock still works correctly (just not across replicas) when Redis is
// absent in local-dev mode.
type localLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLocalLocker() *localLocker {
	return &localLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *localLocker) lock(key string) (unlock func()) {
	l.mu.Lock()
	keyLock, ok := l.locks[key]
	if !ok {
		keyLock = &sync.Mutex{}
		l.locks[key] = keyLock
	}
	l.mu.Unlock()

	keyLock.Lock()
	return keyLock.Unlock
}
