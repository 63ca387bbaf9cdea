package tasks

import (
	"context"
	"fmt"
	"time"
)

// newUsagePruneTask creates the scheduled task that trims token usage data
// past the configured retention window.
func newUsagePruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "usage_prune")

	return func(ctx context.Context) error {
		retention := deps.Config.Limits.UsageRetentionDays
		if retention <= 0 {
			log.InfoContext(ctx, "Usage retention disabled, skipping prune")
			return nil
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -retention).Format("2006-01-02")
		log.InfoContext(ctx, "Starting usage prune task", "cutoff", cutoff)
		startTime := time.Now()

		err := deps.Store.PruneUsageBefore(ctx, cutoff)
		duration := time.Since(startTime)

		if err != nil {
			log.ErrorContext(ctx, "Usage prune task failed", "error", err, "duration", duration)
			return fmt.Errorf("usage prune failed: %w", err)
		}

		log.InfoContext(ctx, "Usage prune task completed", "duration", duration)
		return nil
	}
}
