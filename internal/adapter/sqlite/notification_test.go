package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neolearn/subsync/internal/adapter/sqlite"
	"github.com/neolearn/subsync/internal/domain"
)

func enqueueN(t *testing.T, queue *sqlite.NotificationQueue, n int) []domain.NotificationTask {
	t.Helper()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tasks := make([]domain.NotificationTask, 0, n)
	for i := 0; i < n; i++ {
		task := domain.NewNotificationTask(fmt.Sprintf("task-%d", i), "t-1", domain.NoticePaymentDue)
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := queue.Enqueue(context.Background(), task); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		tasks = append(tasks, task)
	}
	return tasks
}

func TestClaim_OldestFirstUpToLimit(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	enqueueN(t, queue, 3)

	claimed, err := queue.Claim(context.Background(), 2)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("len(claimed) = %d, want 2", len(claimed))
	}
	if claimed[0].ID != "task-0" || claimed[1].ID != "task-1" {
		t.Errorf("claimed order = %q, %q; want task-0, task-1", claimed[0].ID, claimed[1].ID)
	}
	for _, task := range claimed {
		if task.Status != domain.TaskProcessing {
			t.Errorf("task %s status = %q, want %q", task.ID, task.Status, domain.TaskProcessing)
		}
	}
}

func TestClaim_DoesNotHandOutTwice(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	enqueueN(t, queue, 2)
	ctx := context.Background()

	first, err := queue.Claim(ctx, 10)
	if err != nil {
		t.Fatalf("first Claim failed: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first claim = %d tasks, want 2", len(first))
	}

	second, err := queue.Claim(ctx, 10)
	if err != nil {
		t.Fatalf("second Claim failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second claim = %d tasks, want 0", len(second))
	}
}

func TestClaim_EmptyQueue(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))

	claimed, err := queue.Claim(context.Background(), 5)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("len(claimed) = %d, want 0", len(claimed))
	}
}

func TestMarkSent(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	enqueueN(t, queue, 1)
	ctx := context.Background()

	claimed, err := queue.Claim(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("Claim = %v, %v", claimed, err)
	}

	at := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if err := queue.MarkSent(ctx, claimed[0].ID, at); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}

	got, err := queue.GetByID(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.TaskSent {
		t.Errorf("Status = %q, want %q", got.Status, domain.TaskSent)
	}
	if got.ProcessedAt == nil || !got.ProcessedAt.Equal(at) {
		t.Errorf("ProcessedAt = %v, want %v", got.ProcessedAt, at)
	}
}

func TestMarkFailed_RecordsError(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	enqueueN(t, queue, 1)
	ctx := context.Background()

	claimed, err := queue.Claim(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("Claim = %v, %v", claimed, err)
	}

	if err := queue.MarkFailed(ctx, claimed[0].ID, time.Now().UTC(), "smtp timeout"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	got, err := queue.GetByID(ctx, claimed[0].ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != domain.TaskFailed {
		t.Errorf("Status = %q, want %q", got.Status, domain.TaskFailed)
	}
	if got.ErrorMessage != "smtp timeout" {
		t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, "smtp timeout")
	}
}

func TestMarkSent_RequiresProcessing(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	enqueueN(t, queue, 1)

	// Still pending, never claimed.
	err := queue.MarkSent(context.Background(), "task-0", time.Now().UTC())
	var terr *domain.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if terr.Current != domain.TaskPending {
		t.Errorf("Current = %q, want %q", terr.Current, domain.TaskPending)
	}
}

func TestMarkSent_MissingTask(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))

	err := queue.MarkSent(context.Background(), "ghost", time.Now().UTC())
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestEnqueue_DedupsByProviderEvent(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	ctx := context.Background()

	first := domain.NewNotificationTask("task-a", "t-1", domain.NoticePaymentDue)
	first.EventID = "evt-1"
	if err := queue.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Redelivery of the same provider event inserts nothing.
	redelivered := domain.NewNotificationTask("task-b", "t-1", domain.NoticePaymentDue)
	redelivered.EventID = "evt-1"
	if err := queue.Enqueue(ctx, redelivered); err != nil {
		t.Fatalf("redelivered Enqueue should be a no-op, got %v", err)
	}

	// A later event for the same tenant and kind is a new task.
	later := domain.NewNotificationTask("task-c", "t-1", domain.NoticePaymentDue)
	later.EventID = "evt-2"
	if err := queue.Enqueue(ctx, later); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	tasks, err := queue.List(ctx, domain.TaskFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	for _, task := range tasks {
		if task.ID == "task-b" {
			t.Error("redelivered task must not be stored")
		}
	}
}

func TestEnqueue_RequeuedTasksAreNeverDeduped(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	ctx := context.Background()

	// Operator re-queues carry no event id.
	for _, id := range []string{"task-a", "task-b"} {
		if err := queue.Enqueue(ctx, domain.NewNotificationTask(id, "t-1", domain.NoticePaymentDue)); err != nil {
			t.Fatalf("Enqueue %s failed: %v", id, err)
		}
	}

	tasks, err := queue.List(ctx, domain.TaskFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
}

func TestGetByID_TaskNotFound(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))

	_, err := queue.GetByID(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestList_FiltersTasksByStatus(t *testing.T) {
	queue := sqlite.NewNotificationQueue(newTestStore(t))
	enqueueN(t, queue, 3)
	ctx := context.Background()

	claimed, err := queue.Claim(ctx, 1)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("Claim = %v, %v", claimed, err)
	}

	pending := domain.TaskPending
	got, err := queue.List(ctx, domain.TaskFilter{Status: &pending})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(pending) = %d, want 2", len(got))
	}
}

func TestAuditLog_AppendAndList(t *testing.T) {
	audit := sqlite.NewAuditLog(newTestStore(t))
	ctx := context.Background()

	entries := []domain.AuditEntry{
		{ID: "a-1", TaskID: "task-1", TenantID: "t-1", Recipient: "x@acme.test", Subject: "s1", Body: "b1", Outcome: domain.TaskFailed, ErrorMessage: "smtp timeout", CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{ID: "a-2", TaskID: "task-1", TenantID: "t-1", Recipient: "x@acme.test", Subject: "s1", Body: "b1", Outcome: domain.TaskSent, CreatedAt: time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)},
	}
	for _, e := range entries {
		if err := audit.Append(ctx, e); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := audit.ListByTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("ListByTask failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].ID != "a-1" || got[1].ID != "a-2" {
		t.Errorf("order = %q, %q; want a-1, a-2", got[0].ID, got[1].ID)
	}
	if got[0].Outcome != domain.TaskFailed {
		t.Errorf("Outcome = %q, want %q", got[0].Outcome, domain.TaskFailed)
	}
	if got[0].ErrorMessage != "smtp timeout" {
		t.Errorf("ErrorMessage = %q, want %q", got[0].ErrorMessage, "smtp timeout")
	}
	if got[1].ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty for a sent entry", got[1].ErrorMessage)
	}
}
