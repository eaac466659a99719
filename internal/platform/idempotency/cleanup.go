package idempotency

import (
	"context"
	"time"
)

const (
	defaultCleanupInterval  = 15 * time.Minute
	defaultCleanupBatchSize = 200
)

// Janitor periodically deletes expired idempotency records.
type Janitor struct {
	store     Store
	interval  time.Duration
	batchSize int
	clock     clockFunc
	logger    Logger
}

// JanitorOption customises a Janitor.
type JanitorOption func(*Janitor)

// WithCleanupInterval sets how often expired records are swept.
func WithCleanupInterval(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.interval = d
		}
	}
}

// WithCleanupBatchSize bounds how many records a single sweep pass deletes.
func WithCleanupBatchSize(n int) JanitorOption {
	return func(j *Janitor) {
		if n > 0 {
			j.batchSize = n
		}
	}
}

// WithJanitorLogger sets the logger used to report sweep results.
func WithJanitorLogger(logger Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithJanitorClock overrides the time source.
func WithJanitorClock(clock func() time.Time) JanitorOption {
	return func(j *Janitor) {
		if clock != nil {
			j.clock = clock
		}
	}
}

// NewJanitor constructs a Janitor for store.
func NewJanitor(store Store, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		store:     store,
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		clock:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j
}

// Sweep deletes expired records, repeating full batches until a short batch signals the backlog is empty.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	if j == nil || j.store == nil {
		return 0, nil
	}
	total := 0
	for {
		removed, err := j.store.CleanupExpired(ctx, j.clock().UTC(), j.batchSize)
		total += removed
		if err != nil {
			return total, err
		}
		if removed < j.batchSize || ctx.Err() != nil {
			return total, nil
		}
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if j == nil || j.store == nil {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := j.Sweep(ctx)
			if j.logger == nil {
				continue
			}
			if err != nil {
				j.logger.Printf("idempotency: cleanup failed after removing %d records: %v", removed, err)
				continue
			}
			if removed > 0 {
				j.logger.Printf("idempotency: removed %d expired records", removed)
			}
		}
	}
}
