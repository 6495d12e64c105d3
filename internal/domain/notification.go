package domain

import "time"

// NotificationKind identifies the tenant-visible consequence a task
// communicates.
type NotificationKind string

const (
	NoticeCollaboratorsBlocked NotificationKind = "collaborators_blocked"
	NoticeSubscriptionExpired  NotificationKind = "subscription_expired"
	NoticePaymentDue           NotificationKind = "payment_due"
	NoticeSubscriptionCanceled NotificationKind = "subscription_canceled"
)

// NotificationKindForStatus maps an adverse subscription status to the
// notification it implies. Entitled statuses imply no notification.
func NotificationKindForStatus(s SubscriptionStatus) (NotificationKind, bool) {
	switch s {
	case StatusPastDue:
		return NoticePaymentDue, true
	case StatusCanceled:
		return NoticeSubscriptionCanceled, true
	case StatusUnpaid:
		return NoticeCollaboratorsBlocked, true
	case StatusInactive:
		return NoticeSubscriptionExpired, true
	default:
		return "", false
	}
}

// TaskStatus is the lifecycle state of a notification task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskSent       TaskStatus = "sent"
	TaskFailed     TaskStatus = "failed"
)

// TaskEvent is an action that advances a notification task.
type TaskEvent string

const (
	TaskEventClaim      TaskEvent = "claim"
	TaskEventMarkSent   TaskEvent = "mark_sent"
	TaskEventMarkFailed TaskEvent = "mark_failed"
)

// TaskTransition defines a valid task state change.
type TaskTransition struct {
	Event TaskEvent
	Src   TaskStatus
	Dst   TaskStatus
}

// TaskTransitions defines every legal notification task state change.
// Transitions are monotonic: sent and failed are terminal, and a failed
// task is never rewound. A retry is always a brand-new task.
var TaskTransitions = []TaskTransition{
	{Event: TaskEventClaim, Src: TaskPending, Dst: TaskProcessing},
	{Event: TaskEventMarkSent, Src: TaskProcessing, Dst: TaskSent},
	{Event: TaskEventMarkFailed, Src: TaskProcessing, Dst: TaskFailed},
}

// NotificationTask is one unit of outbound communication, durably queued
// between the synchronizer that creates it and the dispatcher that
// retires it. EventID names the provider event that caused the task and
// is the queue's dedup key together with TenantID and Kind; it is empty
// for tasks created by an operator re-queue, which are never deduped.
type NotificationTask struct {
	ID           string
	TenantID     string
	Kind         NotificationKind
	EventID      string
	Status       TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// NewNotificationTask creates a pending task for a tenant.
func NewNotificationTask(id, tenantID string, kind NotificationKind) NotificationTask {
	return NotificationTask{
		ID:        id,
		TenantID:  tenantID,
		Kind:      kind,
		Status:    TaskPending,
		CreatedAt: time.Now().UTC(),
	}
}

// AuditEntry records one delivery attempt: recipient, rendered content
// and outcome. The audit log is append-only and never mutated, even when
// the same notification is later resent as a new task. A failed attempt
// carries the failure reason in ErrorMessage; content fields stay empty
// when the attempt failed before rendering.
type AuditEntry struct {
	ID           string
	TaskID       string
	TenantID     string
	Recipient    string
	Subject      string
	Body         string
	Outcome      TaskStatus
	ErrorMessage string
	CreatedAt    time.Time
}
