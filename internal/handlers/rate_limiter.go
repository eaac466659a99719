package handlers

import (
	"strings"
	"sync"
	"time"

	domain "github.com/autox/api/internal/domain"
)

// createQuota limits how many service requests one actor may submit per window.
type createQuota interface {
	// Take consumes one slot for the actor. When the window is exhausted it returns false and the time
	// remaining until the window resets.
	Take(actor domain.Actor) (bool, time.Duration)
}

type windowQuota struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	usage  map[string]quotaWindow
}

type quotaWindow struct {
	used    int
	resetAt time.Time
}

func newWindowQuota(limit int, window time.Duration, clock func() time.Time) createQuota {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowQuota{
		limit:  limit,
		window: window,
		clock:  clock,
		usage:  make(map[string]quotaWindow),
	}
}

func (q *windowQuota) Take(actor domain.Actor) (bool, time.Duration) {
	if q == nil {
		return true, 0
	}
	key := quotaKey(actor)
	now := q.clock()
	q.mu.Lock()
	defer q.mu.Unlock()

	current, ok := q.usage[key]
	if !ok || !now.Before(current.resetAt) {
		q.usage[key] = quotaWindow{used: 1, resetAt: now.Add(q.window)}
		q.evictExpiredLocked(now)
		return true, 0
	}
	if current.used >= q.limit {
		return false, current.resetAt.Sub(now)
	}
	current.used++
	q.usage[key] = current
	return true, 0
}

func (q *windowQuota) evictExpiredLocked(now time.Time) {
	for key, entry := range q.usage {
		if !now.Before(entry.resetAt) {
			delete(q.usage, key)
		}
	}
}

// quotaKey buckets partner staff under their partner so one business shares a budget.
func quotaKey(actor domain.Actor) string {
	if partner := strings.TrimSpace(actor.PartnerID); partner != "" {
		return "partner:" + partner
	}
	if id := strings.TrimSpace(actor.ID); id != "" {
		return "user:" + id
	}
	return "anonymous"
}
