package marketplace

import (
	"context"
	"time"

	"github.com/sudo-init-do/workerlly/internal/logger"
)

// RunSweeper calls SweepStale every interval until ctx ends.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx).With("component", "job_sweeper")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := e.SweepStale(ctx)
			if err != nil && ctx.Err() == nil {
				log.Error("job sweep failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info("job sweep finished", "cancelled", n)
			}
		}
	}
}
