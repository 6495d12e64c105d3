package app

import (
	"context"
	"fmt"

	"github.com/neolearn/subsync/internal/domain"
)

// AdminService backs the operational read API and the explicit re-queue
// operation.
type AdminService struct {
	repo     domain.TenantRepository
	queue    domain.NotificationQueue
	deferred domain.DeferredEventStore
}

// NewAdminService creates an admin service over the given stores.
func NewAdminService(repo domain.TenantRepository, queue domain.NotificationQueue, deferred domain.DeferredEventStore) *AdminService {
	return &AdminService{
		repo:     repo,
		queue:    queue,
		deferred: deferred,
	}
}

// GetTenant returns a tenant by its identifier.
func (s *AdminService) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// ListTenants returns tenants matching the given filter.
func (s *AdminService) ListTenants(ctx context.Context, filter domain.ListFilter) ([]domain.Tenant, error) {
	return s.repo.List(ctx, filter)
}

// CollaboratorUsage reports how many active collaborators a tenant has
// against its plan ceiling.
func (s *AdminService) CollaboratorUsage(ctx context.Context, tenantID string) (active, max int, err error) {
	tenant, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return 0, 0, err
	}
	active, err = s.repo.CountActiveCollaborators(ctx, tenantID)
	if err != nil {
		return 0, 0, fmt.Errorf("counting collaborators: %w", err)
	}
	return active, tenant.MaxCollaborators, nil
}

// ListTasks returns notification tasks matching the given filter.
func (s *AdminService) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.NotificationTask, error) {
	return s.queue.List(ctx, filter)
}

// RequeueTask re-queues a failed notification as a brand-new pending
// task. Failed is terminal for a task instance; its status is never
// rewound.
func (s *AdminService) RequeueTask(ctx context.Context, taskID string) (domain.NotificationTask, error) {
	task, err := s.queue.GetByID(ctx, taskID)
	if err != nil {
		return domain.NotificationTask{}, err
	}

	if task.Status != domain.TaskFailed {
		return domain.NotificationTask{}, &domain.TransitionError{
			Event:   domain.TaskEventClaim,
			Current: task.Status,
		}
	}

	id, err := generateID()
	if err != nil {
		return domain.NotificationTask{}, fmt.Errorf("generating task id: %w", err)
	}

	fresh := domain.NewNotificationTask(id, task.TenantID, task.Kind)
	if err := s.queue.Enqueue(ctx, fresh); err != nil {
		return domain.NotificationTask{}, fmt.Errorf("enqueuing replacement task: %w", err)
	}
	return fresh, nil
}

// ListDeferredEvents returns events still waiting for their tenant.
func (s *AdminService) ListDeferredEvents(ctx context.Context, limit int) ([]domain.DeferredEvent, error) {
	return s.deferred.ListUnresolved(ctx, limit)
}
