package tasks

import (
	"context"
	"time"
)

// SessionCleanupStore is the narrow store slice the session cleanup
// task needs to find and purge idle sessions.
type SessionCleanupStore interface {
	IdleSessions(ctx context.Context, maxAge time.Duration) ([]string, error)
	DeleteSessionMessages(ctx context.Context, sessionID string) (int64, error)
}

// RecentInvalidator is the narrow recall.Engine slice this task uses to
// evict a deleted session's cached recent-window entry, so a stale hit
// never outlives the rows it was built from.
type RecentInvalidator interface {
	InvalidateRecent(sessionID string)
}

// SessionCleanupTask purges sessions that have been idle past
// session_max_age_hours, per spec.md §4.8's periodic cleanup job.
type SessionCleanupTask struct {
	store    SessionCleanupStore
	recall   RecentInvalidator
	maxAge   time.Duration
	interval time.Duration
}

func NewSessionCleanupTask(store SessionCleanupStore, recall RecentInvalidator, maxAge, interval time.Duration) *SessionCleanupTask {
	return &SessionCleanupTask{store: store, recall: recall, maxAge: maxAge, interval: interval}
}

func (t *SessionCleanupTask) Name() string           { return "session_cleanup" }
func (t *SessionCleanupTask) Interval() time.Duration { return t.interval }

func (t *SessionCleanupTask) Run(ctx context.Context) (int, error) {
	sessions, err := t.store.IdleSessions(ctx, t.maxAge)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, sessionID := range sessions {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if _, err := t.store.DeleteSessionMessages(ctx, sessionID); err != nil {
			return processed, err
		}
		if t.recall != nil {
			t.recall.InvalidateRecent(sessionID)
		}
		processed++
	}
	return processed, nil
}
