package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neolearn/subsync/internal/app"
	"github.com/neolearn/subsync/internal/domain"
)

func TestRequeueTask_FailedBecomesNewPendingTask(t *testing.T) {
	queue := newMockQueue()
	svc := app.NewAdminService(newMockRepo(), queue, &mockDeferred{})
	ctx := context.Background()

	task := domain.NewNotificationTask("task-1", "tenant-1", domain.NoticePaymentDue)
	task.Status = domain.TaskFailed
	now := time.Now().UTC()
	task.ProcessedAt = &now
	queue.tasks[task.ID] = task
	queue.order = append(queue.order, task.ID)

	fresh, err := svc.RequeueTask(ctx, "task-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fresh.ID == "task-1" {
		t.Error("requeue must create a new task, not reuse the failed one")
	}
	if fresh.Status != domain.TaskPending {
		t.Errorf("new task status = %q, want %q", fresh.Status, domain.TaskPending)
	}
	if fresh.Kind != domain.NoticePaymentDue || fresh.TenantID != "tenant-1" {
		t.Error("new task should carry over kind and tenant")
	}

	// The original instance was never rewound.
	original, _ := queue.GetByID(ctx, "task-1")
	if original.Status != domain.TaskFailed {
		t.Errorf("original status = %q, want %q", original.Status, domain.TaskFailed)
	}
}

func TestRequeueTask_RejectsNonFailedTasks(t *testing.T) {
	queue := newMockQueue()
	svc := app.NewAdminService(newMockRepo(), queue, &mockDeferred{})

	for _, status := range []domain.TaskStatus{domain.TaskPending, domain.TaskProcessing, domain.TaskSent} {
		task := domain.NewNotificationTask("task-"+string(status), "tenant-1", domain.NoticePaymentDue)
		task.Status = status
		queue.tasks[task.ID] = task

		_, err := svc.RequeueTask(context.Background(), task.ID)
		var trErr *domain.TransitionError
		if !errors.As(err, &trErr) {
			t.Errorf("status %q: expected TransitionError, got %v", status, err)
		}
	}
}

func TestRequeueTask_NotFound(t *testing.T) {
	svc := app.NewAdminService(newMockRepo(), newMockQueue(), &mockDeferred{})

	_, err := svc.RequeueTask(context.Background(), "nope")
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestCollaboratorUsage(t *testing.T) {
	repo := newMockRepo()
	tenant := seedTenant(repo)
	repo.collaborators[tenant.ID] = 7

	svc := app.NewAdminService(repo, newMockQueue(), &mockDeferred{})

	active, max, err := svc.CollaboratorUsage(context.Background(), tenant.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active != 7 || max != tenant.MaxCollaborators {
		t.Errorf("usage = (%d, %d), want (7, %d)", active, max, tenant.MaxCollaborators)
	}
}
