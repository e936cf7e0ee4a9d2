package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReconcileLockKey builds redis keys for per-subject reconciliation
// critical sections.
func ReconcileLockKey(subjectID string) string {
	return fmt.Sprintf("reconcile:subject:%s:lock", subjectID)
}

// SubjectLocker serializes reconciliations per subject via redis SETNX.
// The engine itself is stateless; the lock only rejects concurrent
// requests for the same subject instead of letting them interleave.
type SubjectLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSubjectLocker constructs a locker. TTL bounds how long a crashed
// holder can block the subject.
func NewSubjectLocker(client *redis.Client, ttl time.Duration) *SubjectLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SubjectLocker{client: client, ttl: ttl}
}

// Acquire takes the subject lock or returns ErrLocked.
func (l *SubjectLocker) Acquire(ctx context.Context, subjectID, holder string) error {
	if l == nil || l.client == nil {
		return nil
	}
	ok, err := l.client.SetNX(ctx, ReconcileLockKey(subjectID), holder, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("shared: acquire subject lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Release drops the subject lock if still held by holder.
func (l *SubjectLocker) Release(ctx context.Context, subjectID, holder string) {
	if l == nil || l.client == nil {
		return
	}
	key := ReconcileLockKey(subjectID)
	current, err := l.client.Get(ctx, key).Result()
	if err != nil || current != holder {
		return
	}
	_ = l.client.Del(ctx, key).Err()
}
