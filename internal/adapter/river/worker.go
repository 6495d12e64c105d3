package river

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/neolearn/subsync/internal/app"
)

// DispatchArgs triggers one notification dispatch batch.
type DispatchArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (DispatchArgs) Kind() string { return "notifications.dispatch" }

// DispatchWorker drains a batch of pending notification tasks.
type DispatchWorker struct {
	river.WorkerDefaults[DispatchArgs]

	dispatcher *app.Dispatcher
	logger     *slog.Logger
}

// Work processes one dispatch batch.
func (w *DispatchWorker) Work(ctx context.Context, job *river.Job[DispatchArgs]) error {
	stats, err := w.dispatcher.Run(ctx)
	if err != nil {
		return err
	}
	if stats.Claimed > 0 {
		w.logger.InfoContext(ctx, "notification batch dispatched",
			"claimed", stats.Claimed,
			"sent", stats.Sent,
			"failed", stats.Failed,
			"job_id", job.ID,
		)
	}
	return nil
}

// ReconcileArgs triggers one deferred event reconciliation sweep.
type ReconcileArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (ReconcileArgs) Kind() string { return "events.reconcile" }

// ReconcileWorker replays deferred events whose tenant may exist by now.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]

	synchronizer *app.Synchronizer
	logger       *slog.Logger
}

// Work runs one reconciliation sweep.
func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileArgs]) error {
	resolved, err := w.synchronizer.ResolveDeferred(ctx, reconcileBatchSize)
	if err != nil {
		return err
	}
	if resolved > 0 {
		w.logger.InfoContext(ctx, "deferred events resolved",
			"resolved", resolved,
			"job_id", job.ID,
		)
	}
	return nil
}

const reconcileBatchSize = 100
