package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/klppl/apfed/internal/deliverer"
	"github.com/klppl/apfed/internal/store"
)

const queuePollInterval = 5 * time.Second

// runDeliveryWorker polls the outgoing queue for due entries and delivers
// them through pool, rescheduling transient failures along the retry
// schedule and recording reachability, per spec.md §4.7/§6.
func runDeliveryWorker(ctx context.Context, queue store.OutgoingQueue, reachability store.ReachabilityStore, pool *deliverer.Pool, sender deliverer.Sender) {
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deliverDueEntries(ctx, queue, reachability, pool, sender)
		}
	}
}

func deliverDueEntries(ctx context.Context, queue store.OutgoingQueue, reachability store.ReachabilityStore, pool *deliverer.Pool, sender deliverer.Sender) {
	const batchSize = 50

	due, err := queue.DueEntries(time.Now(), batchSize)
	if err != nil {
		slog.Error("delivery worker: list due entries", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	jobs := make([]deliverer.Job, len(due))
	for i, e := range due {
		jobs[i] = deliverer.Job{ID: e.ID, Sender: sender, RecipientInbox: e.RecipientInbox, ActivityJSON: e.ActivityJSON}
	}

	attempts := make(map[string]int, len(due))
	for _, e := range due {
		attempts[e.ID] = e.AttemptCount
	}

	pool.RunAll(ctx, jobs, func(job deliverer.Job, result deliverer.Result, err error) {
		now := time.Now()
		if err != nil {
			slog.Warn("delivery worker: transport error", "inbox", job.RecipientInbox, "error", err)
		}

		switch result.Kind {
		case deliverer.ResultSuccess:
			if dErr := queue.Delete(job.ID); dErr != nil {
				slog.Error("delivery worker: delete delivered entry", "id", job.ID, "error", dErr)
			}
			if rErr := reachability.RecordSuccess(job.RecipientInbox, now); rErr != nil {
				slog.Error("delivery worker: record reachability success", "inbox", job.RecipientInbox, "error", rErr)
			}
		case deliverer.ResultFatal:
			if dErr := queue.Delete(job.ID); dErr != nil {
				slog.Error("delivery worker: delete fatally-failed entry", "id", job.ID, "error", dErr)
			}
			if rErr := reachability.RecordFailure(job.RecipientInbox, now, false); rErr != nil {
				slog.Error("delivery worker: record reachability failure", "inbox", job.RecipientInbox, "error", rErr)
			}
		case deliverer.ResultTransient:
			nextAttempt := attempts[job.ID] + 1
			delay, ok := deliverer.NextRetryDelay(nextAttempt)
			if !ok {
				if dErr := queue.Delete(job.ID); dErr != nil {
					slog.Error("delivery worker: drop exhausted entry", "id", job.ID, "error", dErr)
				}
				if rErr := reachability.RecordFailure(job.RecipientInbox, now, true); rErr != nil {
					slog.Error("delivery worker: mark unreachable", "inbox", job.RecipientInbox, "error", rErr)
				}
				return
			}
			if rErr := queue.Reschedule(job.ID, nextAttempt, now.Add(delay)); rErr != nil {
				slog.Error("delivery worker: reschedule entry", "id", job.ID, "error", rErr)
			}
			if rErr := reachability.RecordFailure(job.RecipientInbox, now, false); rErr != nil {
				slog.Error("delivery worker: record reachability failure", "inbox", job.RecipientInbox, "error", rErr)
			}
		}
	})
}
