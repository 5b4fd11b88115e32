package jobs

import (
	"context"
	"log"
	"time"

	"github.com/hurxxxx/trailtag-sub001/internal/metrics"
	"github.com/hurxxxx/trailtag-sub001/internal/session"
)

// StartSessionSweepJob deletes expired session rows on a fixed interval.
// The job never touches request handling: a failed tick is logged and the
// next tick simply retries.
func StartSessionSweepJob(ctx context.Context, interval time.Duration, manager *session.Manager) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				deleted, err := manager.SweepExpired(tickCtx)
				cancel()
				if err != nil {
					metrics.SessionSweepErrors.Inc()
					log.Printf("session sweep error: %v", err)
					continue
				}
				if deleted > 0 {
					metrics.SessionsSwept.Add(float64(deleted))
					log.Printf("session sweep removed %d expired sessions", deleted)
				}
			}
		}
	}()
}
