// Package actionlog implements the Action Logger (§4.B): an append-only
// writer that must never block a turn for more than ~50ms. Writes are
// handed to a bounded per-user queue and flushed by a background worker;
// when a user's queue is full the oldest pending entry is dropped and an
// overflow counter is incremented, mirroring the teacher's redis-backed
// shared-counter pattern in orchestrator/dedupe.go.
package actionlog

import (
	"context"
	"sync"
	"time"

	"aria/internal/observability"
	"aria/internal/storage"

	"github.com/redis/go-redis/v9"
)

// bufferCapacity is the per-user drop-oldest buffer size from §4.B.
const bufferCapacity = 1024

// Logger buffers ActionLog writes and flushes them to a backing store.
type Logger struct {
	store storage.ActionLogStore
	redis *redis.Client // optional; nil means overflow counts stay in-process

	mu       sync.Mutex
	queues   map[string][]storage.ActionLog
	overflow map[string]int64
	flushCh  chan string
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a Logger backed by store. rdb may be nil, in which case
// overflow counters are kept in memory only (acceptable for a single
// replica / local-dev deployment).
func New(store storage.ActionLogStore, rdb *redis.Client) *Logger {
	l := &Logger{
		store:    store,
		redis:    rdb,
		queues:   make(map[string][]storage.ActionLog),
		overflow: make(map[string]int64),
		flushCh:  make(chan string, 256),
		stopCh:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.flushLoop()
	return l
}

// Close stops the flush worker, waiting for it to drain.
func (l *Logger) Close() {
	close(l.stopCh)
	l.wg.Wait()
}

// Append enqueues a, returning immediately: the backing write happens on a
// background goroutine so a slow store never blocks the turn.
func (l *Logger) Append(ctx context.Context, a storage.ActionLog) {
	l.mu.Lock()
	q := l.queues[a.UserID]
	if len(q) >= bufferCapacity {
		q = q[1:] // drop-oldest
		l.overflow[a.UserID]++
		if l.redis != nil {
			go l.bumpOverflowCounter(a.UserID)
		}
	}
	l.queues[a.UserID] = append(q, a)
	l.mu.Unlock()

	select {
	case l.flushCh <- a.UserID:
	default:
		// a flush is already pending for someone; flushLoop will get to
		// this user's queue on its next tick regardless.
	}
}

func (l *Logger) bumpOverflowCounter(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := "actionlog:overflow:" + userID
	if err := l.redis.Incr(ctx, key).Err(); err != nil {
		logger := observability.LoggerWithTrace(ctx)
		logger.Warn().Err(err).Str("user_id", userID).Msg("actionlog overflow counter incr failed")
	}
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			l.drainAll()
			return
		case <-l.flushCh:
			l.drainAll()
		case <-ticker.C:
			l.drainAll()
		}
	}
}

func (l *Logger) drainAll() {
	l.mu.Lock()
	pending := l.queues
	l.queues = make(map[string][]storage.ActionLog)
	l.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger := observability.LoggerWithTrace(ctx)
	for userID, entries := range pending {
		for _, a := range entries {
			if err := l.store.Append(ctx, a); err != nil {
				logger.Error().Err(err).Str("user_id", userID).Str("tool", a.ToolName).Msg("actionlog write failed")
			}
		}
	}
}

// OverflowCount returns the number of dropped entries for userID observed by
// this process (best effort; not cluster-wide unless backed by redis).
func (l *Logger) OverflowCount(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overflow[userID]
}

// Recent delegates to the backing store's (user_id, since) query.
func (l *Logger) Recent(ctx context.Context, userID string, since time.Time) ([]storage.ActionLog, error) {
	return l.store.Recent(ctx, userID, since)
}
