package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

// Dispatcher drains the notification queue in bounded batches: claim,
// render, deliver, record. It runs on its own schedule, decoupled from
// webhook handling, so webhook latency is never tied to the mail
// transport.
type Dispatcher struct {
	queue     domain.NotificationQueue
	repo      domain.TenantRepository
	audit     domain.AuditLog
	messenger domain.Messenger
	validator domain.TaskTransitionValidator
	batchSize int
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher draining up to batchSize tasks per
// run.
func NewDispatcher(
	queue domain.NotificationQueue,
	repo domain.TenantRepository,
	audit domain.AuditLog,
	messenger domain.Messenger,
	validator domain.TaskTransitionValidator,
	batchSize int,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		repo:      repo,
		audit:     audit,
		messenger: messenger,
		validator: validator,
		batchSize: batchSize,
		logger:    logger,
	}
}

// DispatchStats reports the outcome of one dispatcher run.
type DispatchStats struct {
	Claimed int
	Sent    int
	Failed  int
}

// Run claims one batch of pending tasks and attempts delivery for each.
// The claim is atomic, so concurrent runs never process the same task.
// A run may be interrupted between tasks safely: every task's state
// transition is individually durable.
func (d *Dispatcher) Run(ctx context.Context) (DispatchStats, error) {
	tasks, err := d.queue.Claim(ctx, d.batchSize)
	if err != nil {
		return DispatchStats{}, fmt.Errorf("claiming notification tasks: %w", err)
	}

	stats := DispatchStats{Claimed: len(tasks)}
	for _, task := range tasks {
		if err := d.dispatch(ctx, task); err != nil {
			stats.Failed++
			d.logger.WarnContext(ctx, "notification delivery failed",
				"task_id", task.ID,
				"tenant_id", task.TenantID,
				"kind", string(task.Kind),
				"error", err,
			)
			continue
		}
		stats.Sent++
	}

	if stats.Claimed > 0 {
		d.logger.InfoContext(ctx, "dispatch run finished",
			"claimed", stats.Claimed,
			"sent", stats.Sent,
			"failed", stats.Failed,
		)
	}
	return stats, nil
}

// dispatch attempts delivery of one claimed task and records the outcome
// on the task and in the audit log. Rendering failures are delivery
// failures, not process crashes.
func (d *Dispatcher) dispatch(ctx context.Context, task domain.NotificationTask) error {
	tenant, content, deliverErr := d.deliver(ctx, task)

	now := time.Now().UTC()
	outcome := domain.TaskSent
	taskEvent := domain.TaskEventMarkSent
	if deliverErr != nil {
		outcome = domain.TaskFailed
		taskEvent = domain.TaskEventMarkFailed
	}

	if _, err := d.validator.Apply(ctx, task.Status, taskEvent); err != nil {
		return fmt.Errorf("illegal task transition: %w", err)
	}

	if deliverErr != nil {
		if err := d.queue.MarkFailed(ctx, task.ID, now, deliverErr.Error()); err != nil {
			return fmt.Errorf("recording failure: %w", err)
		}
	} else {
		if err := d.queue.MarkSent(ctx, task.ID, now); err != nil {
			return fmt.Errorf("recording success: %w", err)
		}
	}

	entryID, err := generateID()
	if err != nil {
		return fmt.Errorf("generating audit id: %w", err)
	}
	entry := domain.AuditEntry{
		ID:        entryID,
		TaskID:    task.ID,
		TenantID:  task.TenantID,
		Recipient: tenant.ContactEmail,
		Subject:   content.Subject,
		Body:      content.Body,
		Outcome:   outcome,
		CreatedAt: now,
	}
	if deliverErr != nil {
		// An attempt that failed before the tenant loaded has no
		// recipient or content; the reason is what makes the entry
		// meaningful.
		entry.ErrorMessage = deliverErr.Error()
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		// The task outcome is already durable; a lost audit entry is
		// logged, not retried against an append-only log.
		d.logger.WarnContext(ctx, "audit append failed",
			"task_id", task.ID, "error", err)
	}

	return deliverErr
}

// deliver loads the tenant snapshot, renders the content and sends it.
func (d *Dispatcher) deliver(ctx context.Context, task domain.NotificationTask) (domain.Tenant, Content, error) {
	tenant, err := d.repo.GetByID(ctx, task.TenantID)
	if err != nil {
		return domain.Tenant{}, Content{}, fmt.Errorf("loading tenant: %w", err)
	}

	active, err := d.repo.CountActiveCollaborators(ctx, tenant.ID)
	if err != nil {
		return tenant, Content{}, fmt.Errorf("counting collaborators: %w", err)
	}

	content, err := RenderNotification(task.Kind, tenant, active)
	if err != nil {
		return tenant, Content{}, fmt.Errorf("rendering notification: %w", err)
	}

	if err := d.messenger.Send(ctx, tenant.ContactEmail, content.Subject, content.Body); err != nil {
		return tenant, content, fmt.Errorf("sending notification: %w", err)
	}

	return tenant, content, nil
}
