package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neolearn/subsync/internal/domain"
)

// Router dispatches a verified canonical event to exactly one handler.
//
// Handler failures never propagate to the transport layer: a non-success
// response would make the provider redeliver indefinitely, while a
// missed side effect can be reconciled later from the provider's source
// of truth. Failures are logged loudly instead.
type Router struct {
	provisioner  *Provisioner
	linker       *Linker
	synchronizer *Synchronizer
	logger       *slog.Logger
}

// NewRouter creates a router over the three reconciliation handlers.
func NewRouter(provisioner *Provisioner, linker *Linker, synchronizer *Synchronizer, logger *slog.Logger) *Router {
	return &Router{
		provisioner:  provisioner,
		linker:       linker,
		synchronizer: synchronizer,
		logger:       logger,
	}
}

// Route handles one event and always acknowledges. Unknown kinds are
// ignored so the sender does not retry them. Panics in handlers are
// contained here; a single poisoned event must never take the process
// down.
func (r *Router) Route(ctx context.Context, ev domain.LifecycleEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorContext(ctx, "event handler panicked",
				"event_id", ev.ID,
				"kind", string(ev.Kind),
				"panic", fmt.Sprint(rec),
			)
		}
	}()

	switch ev.Kind {
	case domain.KindCheckoutCompleted:
		r.handleCheckout(ctx, ev)
	case domain.KindInvoicePaid, domain.KindSubscriptionCreated,
		domain.KindSubscriptionUpdated, domain.KindSubscriptionCanceled:
		if err := r.synchronizer.Apply(ctx, ev); err != nil {
			r.warn(ctx, ev, "subscription sync failed", err)
		}
	case domain.KindUnknown:
		r.logger.DebugContext(ctx, "ignoring unknown event kind", "event_id", ev.ID)
	default:
		r.logger.DebugContext(ctx, "ignoring unhandled event kind",
			"event_id", ev.ID, "kind", string(ev.Kind))
	}
}

func (r *Router) handleCheckout(ctx context.Context, ev domain.LifecycleEvent) {
	if ev.Checkout == nil {
		r.warn(ctx, ev, "checkout event without checkout data", domain.ErrMalformedPayload)
		return
	}

	result, err := r.provisioner.Provision(ctx, *ev.Checkout)
	if err != nil {
		r.warn(ctx, ev, "tenant provisioning failed", err)
		return
	}

	// Linking failure leaves the tenant provisioned but unlinked; the
	// next event for this tenant re-attempts it.
	if _, err := r.linker.Link(ctx, result.TenantID); err != nil {
		r.warn(ctx, ev, "identity linking failed", err)
	}
}

func (r *Router) warn(ctx context.Context, ev domain.LifecycleEvent, msg string, err error) {
	r.logger.WarnContext(ctx, msg,
		"event_id", ev.ID,
		"kind", string(ev.Kind),
		"error", err,
	)
}
