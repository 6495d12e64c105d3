package domain

import (
	"context"
	"time"
)

// TenantRepository defines the persistence contract for tenants.
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (Tenant, error)
	GetByCustomerRef(ctx context.Context, ref string) (Tenant, error)
	GetBySubscriptionRef(ctx context.Context, ref string) (Tenant, error)
	GetByContactEmail(ctx context.Context, email string) (Tenant, error)

	// Upsert atomically creates the candidate tenant or, when a tenant
	// already exists for its customer reference or contact email, folds
	// the candidate's checkout fields into the existing row. It returns
	// the stored tenant and whether a new row was created. A uniqueness
	// conflict under concurrent delivery is recovered internally and
	// reported as an update, never surfaced to the caller.
	Upsert(ctx context.Context, candidate Tenant) (Tenant, bool, error)

	Update(ctx context.Context, tenant Tenant) error
	List(ctx context.Context, filter ListFilter) ([]Tenant, error)
	CountActiveCollaborators(ctx context.Context, tenantID string) (int, error)
}

// ListFilter holds optional criteria for listing tenants.
type ListFilter struct {
	Status *SubscriptionStatus
	Limit  int
	Offset int
}

// IdentityDirectory is the slice of the external identity provider this
// subsystem consumes. FindByEmail returns ErrIdentityNotFound when no
// identity exists for the email.
type IdentityDirectory interface {
	FindByEmail(ctx context.Context, email string) (Identity, error)
	CreateWithInvite(ctx context.Context, email string, meta InviteMetadata) (Identity, error)
}

// ProfileRepository persists the minimal profile provisioned for a
// freshly invited identity.
type ProfileRepository interface {
	Create(ctx context.Context, profile Profile) error
}

// NotificationQueue is the durable work queue of outbound notifications.
type NotificationQueue interface {
	Enqueue(ctx context.Context, task NotificationTask) error

	// Claim atomically transitions up to limit of the oldest pending
	// tasks to processing and returns them. Two concurrent claimants
	// never receive the same task.
	Claim(ctx context.Context, limit int) ([]NotificationTask, error)

	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, at time.Time, errMsg string) error
	GetByID(ctx context.Context, id string) (NotificationTask, error)
	List(ctx context.Context, filter TaskFilter) ([]NotificationTask, error)
}

// TaskFilter holds optional criteria for listing notification tasks.
type TaskFilter struct {
	Status *TaskStatus
	Limit  int
	Offset int
}

// AuditLog is the append-only record of delivery attempts.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// DeferredEventStore holds events whose target tenant did not exist yet.
type DeferredEventStore interface {
	Save(ctx context.Context, event DeferredEvent) error
	ListUnresolved(ctx context.Context, limit int) ([]DeferredEvent, error)
	MarkResolved(ctx context.Context, id int64, at time.Time) error
	RecordAttempt(ctx context.Context, id int64) error
}

// Messenger delivers a rendered message to an address. The transport is
// a black box; only success or failure is observed.
type Messenger interface {
	Send(ctx context.Context, to, subject, body string) error
}

// TaskTransitionValidator checks that a task state change is legal and
// returns the destination status.
type TaskTransitionValidator interface {
	Apply(ctx context.Context, current TaskStatus, event TaskEvent) (TaskStatus, error)
}
