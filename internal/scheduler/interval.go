// Package scheduler runs the engine's periodic background tasks.
package scheduler

import (
	"context"
	"time"

	"catalyst/internal/logger"
)

// Every runs task on a fixed interval until ctx is cancelled. The first
// run happens immediately when runNow is set, which the reconciler uses
// to converge state at process start. A task in flight is never
// interrupted mid-call; cancellation is observed between runs.
func Every(ctx context.Context, name string, interval time.Duration, runNow bool, task func(context.Context)) {
	if task == nil || interval <= 0 {
		logger.Warnf("scheduler: %s not started (interval=%s)", name, interval)
		return
	}
	logger.Infof("scheduler: %s started interval=%s run_now=%v", name, interval, runNow)

	if runNow {
		task(ctx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler: %s stopped", name)
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}
