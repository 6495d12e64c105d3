package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

// Synchronizer applies provider-reported subscription changes and
// billing-period renewals to existing tenants, and enqueues notification
// tasks when a change has a tenant-visible consequence.
type Synchronizer struct {
	repo     domain.TenantRepository
	queue    domain.NotificationQueue
	deferred domain.DeferredEventStore
	logger   *slog.Logger
}

// NewSynchronizer creates a synchronizer with the given adapters.
func NewSynchronizer(repo domain.TenantRepository, queue domain.NotificationQueue, deferred domain.DeferredEventStore, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		repo:     repo,
		queue:    queue,
		deferred: deferred,
		logger:   logger,
	}
}

// Apply routes one subscription-affecting event to its handler. An event
// whose tenant does not exist yet is deferred, never fabricated: a bare
// subscription reference cannot satisfy the one-tenant-per-customer
// invariant.
func (s *Synchronizer) Apply(ctx context.Context, ev domain.LifecycleEvent) error {
	switch ev.Kind {
	case domain.KindInvoicePaid:
		if ev.Invoice == nil {
			return domain.ErrMalformedPayload
		}
		return s.applyInvoice(ctx, ev)
	case domain.KindSubscriptionCreated, domain.KindSubscriptionUpdated, domain.KindSubscriptionCanceled:
		if ev.Subscription == nil {
			return domain.ErrMalformedPayload
		}
		return s.applyStatus(ctx, ev)
	default:
		return fmt.Errorf("event kind %q is not subscription-affecting", ev.Kind)
	}
}

// applyInvoice refreshes the billing period from a paid invoice. This is
// the authoritative renewal signal; period boundaries are never inferred
// from subscription updates alone.
func (s *Synchronizer) applyInvoice(ctx context.Context, ev domain.LifecycleEvent) error {
	tenant, err := s.repo.GetBySubscriptionRef(ctx, ev.Invoice.SubscriptionRef)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return s.deferEvent(ctx, ev)
		}
		return fmt.Errorf("loading tenant by subscription ref: %w", err)
	}

	if !ev.Invoice.PeriodStart.IsZero() {
		tenant.SubscriptionStartsAt = ev.Invoice.PeriodStart
	}
	if !ev.Invoice.PeriodEnd.IsZero() {
		tenant.SubscriptionEndsAt = ev.Invoice.PeriodEnd
	}
	tenant.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, tenant); err != nil {
		return fmt.Errorf("updating tenant billing period: %w", err)
	}

	s.logger.InfoContext(ctx, "billing period renewed",
		"tenant_id", tenant.ID,
		"subscription_ref", tenant.ProviderSubscriptionRef,
		"ends_at", tenant.SubscriptionEndsAt,
	)
	return nil
}

// applyStatus writes the provider-reported status and enqueues a
// notification when the transition has a tenant-impacting consequence.
// Entitlement enforcement itself happens downstream; our responsibility
// ends at persisting the correct status.
func (s *Synchronizer) applyStatus(ctx context.Context, ev domain.LifecycleEvent) error {
	tenant, err := s.repo.GetBySubscriptionRef(ctx, ev.Subscription.SubscriptionRef)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return s.deferEvent(ctx, ev)
		}
		return fmt.Errorf("loading tenant by subscription ref: %w", err)
	}

	previous := tenant.SubscriptionStatus

	status := ev.Subscription.Status
	if ev.Kind == domain.KindSubscriptionCanceled {
		status = domain.StatusCanceled
	}

	// The task is enqueued before the status write. A failed enqueue
	// leaves the stored status untouched, so redelivery re-runs the
	// whole handler; after a successful run the queue's per-event dedup
	// makes the redelivered enqueue a no-op. Either way the handler
	// converges without ever losing the task.
	if previous != status {
		if kind, ok := domain.NotificationKindForStatus(status); ok {
			taskID, err := generateID()
			if err != nil {
				return fmt.Errorf("generating task id: %w", err)
			}
			task := domain.NewNotificationTask(taskID, tenant.ID, kind)
			task.EventID = ev.ID
			if err := s.queue.Enqueue(ctx, task); err != nil {
				return fmt.Errorf("enqueuing %s notification: %w", kind, err)
			}
		}
	}

	tenant.SubscriptionStatus = status
	tenant.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, tenant); err != nil {
		return fmt.Errorf("updating tenant status: %w", err)
	}

	s.logger.InfoContext(ctx, "subscription status applied",
		"tenant_id", tenant.ID,
		"previous", string(previous),
		"status", string(status),
	)

	return nil
}

// deferEvent records an event whose tenant does not exist yet. Resolution
// comes from provider redelivery or the periodic sweep.
func (s *Synchronizer) deferEvent(ctx context.Context, ev domain.LifecycleEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serializing deferred event: %w", err)
	}

	deferred := domain.DeferredEvent{
		EventID:         ev.ID,
		Kind:            ev.Kind,
		SubscriptionRef: ev.SubscriptionRef(),
		Payload:         payload,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := s.deferred.Save(ctx, deferred); err != nil {
		return fmt.Errorf("saving deferred event: %w", err)
	}

	s.logger.WarnContext(ctx, "event deferred, no tenant for subscription ref",
		"event_id", ev.ID,
		"kind", string(ev.Kind),
		"subscription_ref", ev.SubscriptionRef(),
	)
	return nil
}

// ResolveDeferred replays unresolved deferred events whose tenant has
// appeared since. It is run by the periodic reconciliation sweep and
// returns how many events were resolved. Events whose tenant is still
// missing stay deferred with their attempt count bumped.
func (s *Synchronizer) ResolveDeferred(ctx context.Context, limit int) (int, error) {
	events, err := s.deferred.ListUnresolved(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing deferred events: %w", err)
	}

	resolved := 0
	for _, d := range events {
		var ev domain.LifecycleEvent
		if err := json.Unmarshal(d.Payload, &ev); err != nil {
			s.logger.ErrorContext(ctx, "deferred event payload unreadable",
				"deferred_id", d.ID, "error", err)
			continue
		}

		if _, err := s.repo.GetBySubscriptionRef(ctx, d.SubscriptionRef); err != nil {
			if errors.Is(err, domain.ErrTenantNotFound) {
				if err := s.deferred.RecordAttempt(ctx, d.ID); err != nil {
					s.logger.WarnContext(ctx, "recording deferred attempt failed",
						"deferred_id", d.ID, "error", err)
				}
				continue
			}
			return resolved, fmt.Errorf("checking deferred event %d: %w", d.ID, err)
		}

		if err := s.Apply(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "replaying deferred event failed",
				"deferred_id", d.ID, "event_id", d.EventID, "error", err)
			continue
		}

		if err := s.deferred.MarkResolved(ctx, d.ID, time.Now().UTC()); err != nil {
			return resolved, fmt.Errorf("marking deferred event %d resolved: %w", d.ID, err)
		}
		resolved++
	}

	return resolved, nil
}
