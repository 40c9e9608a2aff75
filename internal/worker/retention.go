// Package worker runs background maintenance next to the serving scheduler.
package worker

import (
	"context"
	"log"
	"time"
)

// DefaultRetentionInterval is how often the retention cycle runs.
const DefaultRetentionInterval = 1 * time.Hour

// Purger deletes ad events older than a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorker periodically removes ad events that fell out of the
// retention window. The window must exceed the longest frequency-cap
// lookback, including total_max campaigns.
type RetentionWorker struct {
	purger    Purger
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

// NewRetentionWorker creates a worker with the default interval.
func NewRetentionWorker(p Purger, retention time.Duration) *RetentionWorker {
	return &RetentionWorker{
		purger:    p,
		retention: retention,
		interval:  DefaultRetentionInterval,
		now:       time.Now,
	}
}

// Start begins the retention loop. It blocks until ctx is cancelled.
func (w *RetentionWorker) Start(ctx context.Context) {
	log.Printf("[Retention] Starting (interval=%s, retention=%s)", w.interval, w.retention)

	// Run once immediately on start
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Retention] Stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce purges one batch and returns the number of deleted events.
func (w *RetentionWorker) RunOnce(ctx context.Context) int64 {
	start := w.now()
	cutoff := start.Add(-w.retention)
	n, err := w.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[Retention] Error purging events before %s: %v", cutoff.UTC().Format(time.RFC3339), err)
		return 0
	}
	if n > 0 {
		log.Printf("[Retention] Removed %d ad events older than %s", n, w.retention)
	}
	return n
}
