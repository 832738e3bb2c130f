package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StartWatchdog periodically force-fails PRs stuck in reviewing past the
// configured timeout, so a lost or killed pipeline never parks a PR
// forever. Runs until ctx is cancelled.
func (o *Orchestrator) StartWatchdog(ctx context.Context) {
	period := o.cfg.Review.WatchdogPeriod
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.reapStale(ctx)
			}
		}
	}()
}

func (o *Orchestrator) reapStale(ctx context.Context) {
	timeout := time.Duration(o.cfg.Review.TimeoutMinutes) * time.Minute
	cutoff := time.Now().UTC().Add(-timeout)

	stale, err := o.store.ListStaleReviewing(ctx, cutoff)
	if err != nil {
		slog.Error("watchdog scan failed", "error", err)
		return
	}
	for _, pr := range stale {
		ok, err := o.store.MarkFailed(ctx, pr.ID, time.Now().UTC())
		if err != nil {
			slog.Error("watchdog mark failed errored", "pr_id", pr.ID, "error", err)
			continue
		}
		if !ok {
			continue // finished in between, nothing to do
		}
		o.note(ctx, pr.ID, fmt.Sprintf("Review timed out after %d minutes", o.cfg.Review.TimeoutMinutes))
		slog.Warn("review timed out", "pr", pr.Number, "pr_id", pr.ID, "timeout_minutes", o.cfg.Review.TimeoutMinutes)
	}
}
