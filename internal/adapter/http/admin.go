package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neolearn/subsync/internal/app"
	"github.com/neolearn/subsync/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// TenantResponse is the API representation of a tenant.
type TenantResponse struct {
	ID                   string `json:"id" doc:"Unique identifier"`
	Name                 string `json:"name" doc:"Company name"`
	ContactEmail         string `json:"contact_email" doc:"Billing contact email"`
	CustomerRef          string `json:"customer_ref" doc:"Billing provider customer reference"`
	SubscriptionRef      string `json:"subscription_ref,omitempty" doc:"Billing provider subscription reference"`
	SubscriptionStatus   string `json:"subscription_status" doc:"Canonical subscription status"`
	SubscriptionStartsAt string `json:"subscription_starts_at" doc:"Current period start (ISO 8601)"`
	SubscriptionEndsAt   string `json:"subscription_ends_at" doc:"Current period end (ISO 8601)"`
	LinkedIdentityID     string `json:"linked_identity_id,omitempty" doc:"Linked authentication identity"`
	PlanRef              string `json:"plan_ref" doc:"Subscription plan"`
	MaxCollaborators     int    `json:"max_collaborators" doc:"Plan collaborator ceiling"`
	CreatedAt            string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt            string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toTenantResponse(t domain.Tenant) TenantResponse {
	return TenantResponse{
		ID:                   t.ID,
		Name:                 t.Name,
		ContactEmail:         t.ContactEmail,
		CustomerRef:          t.ProviderCustomerRef,
		SubscriptionRef:      t.ProviderSubscriptionRef,
		SubscriptionStatus:   string(t.SubscriptionStatus),
		SubscriptionStartsAt: t.SubscriptionStartsAt.Format(timeFormat),
		SubscriptionEndsAt:   t.SubscriptionEndsAt.Format(timeFormat),
		LinkedIdentityID:     t.LinkedIdentityID,
		PlanRef:              t.PlanRef,
		MaxCollaborators:     t.MaxCollaborators,
		CreatedAt:            t.CreatedAt.Format(timeFormat),
		UpdatedAt:            t.UpdatedAt.Format(timeFormat),
	}
}

// TaskResponse is the API representation of a notification task.
type TaskResponse struct {
	ID           string `json:"id" doc:"Unique identifier"`
	TenantID     string `json:"tenant_id" doc:"Target tenant"`
	Kind         string `json:"kind" doc:"Notification kind"`
	Status       string `json:"status" doc:"Task lifecycle state"`
	ErrorMessage string `json:"error_message,omitempty" doc:"Failure reason, if failed"`
	CreatedAt    string `json:"created_at" doc:"Enqueue timestamp (ISO 8601)"`
	ProcessedAt  string `json:"processed_at,omitempty" doc:"Completion timestamp (ISO 8601)"`
}

func toTaskResponse(t domain.NotificationTask) TaskResponse {
	resp := TaskResponse{
		ID:           t.ID,
		TenantID:     t.TenantID,
		Kind:         string(t.Kind),
		Status:       string(t.Status),
		ErrorMessage: t.ErrorMessage,
		CreatedAt:    t.CreatedAt.Format(timeFormat),
	}
	if t.ProcessedAt != nil {
		resp.ProcessedAt = t.ProcessedAt.Format(timeFormat)
	}
	return resp
}

// DeferredEventResponse is the API representation of a deferred event.
type DeferredEventResponse struct {
	ID              int64  `json:"id" doc:"Store-assigned identifier"`
	EventID         string `json:"event_id" doc:"Provider event identifier"`
	Kind            string `json:"kind" doc:"Canonical event kind"`
	SubscriptionRef string `json:"subscription_ref" doc:"Subscription the event is waiting on"`
	Attempts        int    `json:"attempts" doc:"Replay attempts so far"`
	ReceivedAt      string `json:"received_at" doc:"First delivery timestamp (ISO 8601)"`
}

func toDeferredResponse(e domain.DeferredEvent) DeferredEventResponse {
	return DeferredEventResponse{
		ID:              e.ID,
		EventID:         e.EventID,
		Kind:            string(e.Kind),
		SubscriptionRef: e.SubscriptionRef,
		Attempts:        e.Attempts,
		ReceivedAt:      e.ReceivedAt.Format(timeFormat),
	}
}

// --- Get Tenant ---

type GetTenantInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type GetTenantOutput struct {
	Body TenantResponse
}

// --- List Tenants ---

type ListTenantsInput struct {
	Status string `query:"status" required:"false" doc:"Filter by subscription status"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListTenantsOutput struct {
	Body []TenantResponse
}

// --- Collaborator usage ---

type CollaboratorUsageInput struct {
	ID string `path:"id" doc:"Tenant ID"`
}

type CollaboratorUsageOutput struct {
	Body struct {
		TenantID string `json:"tenant_id" doc:"Tenant"`
		Active   int    `json:"active" doc:"Active collaborators"`
		Max      int    `json:"max" doc:"Plan ceiling"`
	}
}

// --- List Tasks ---

type ListTasksInput struct {
	Status string `query:"status" required:"false" doc:"Filter by task status"`
	Limit  int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type ListTasksOutput struct {
	Body []TaskResponse
}

// --- Requeue Task ---

type RequeueTaskInput struct {
	ID string `path:"id" doc:"Failed task ID"`
}

type RequeueTaskOutput struct {
	Body TaskResponse
}

// --- List Deferred Events ---

type ListDeferredInput struct {
	Limit int `query:"limit" required:"false" default:"50" doc:"Max results"`
}

type ListDeferredOutput struct {
	Body []DeferredEventResponse
}

// Register adds all admin API routes to the Huma API.
func Register(api huma.API, svc *app.AdminService) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tenant",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}",
		Summary:     "Get a tenant by ID",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *GetTenantInput) (*GetTenantOutput, error) {
		tenant, err := svc.GetTenant(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetTenantOutput{Body: toTenantResponse(tenant)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tenants",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants",
		Summary:     "List tenants",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *ListTenantsInput) (*ListTenantsOutput, error) {
		filter := domain.ListFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.SubscriptionStatus(input.Status)
			filter.Status = &s
		}

		tenants, err := svc.ListTenants(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TenantResponse, len(tenants))
		for i, t := range tenants {
			resp[i] = toTenantResponse(t)
		}
		return &ListTenantsOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-collaborator-usage",
		Method:      http.MethodGet,
		Path:        "/api/v1/tenants/{id}/collaborators/usage",
		Summary:     "Report collaborator usage against the plan ceiling",
		Tags:        []string{"Tenants"},
	}, func(ctx context.Context, input *CollaboratorUsageInput) (*CollaboratorUsageOutput, error) {
		active, max, err := svc.CollaboratorUsage(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		out := &CollaboratorUsageOutput{}
		out.Body.TenantID = input.ID
		out.Body.Active = active
		out.Body.Max = max
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notification-tasks",
		Method:      http.MethodGet,
		Path:        "/api/v1/notifications",
		Summary:     "List notification tasks",
		Tags:        []string{"Notifications"},
	}, func(ctx context.Context, input *ListTasksInput) (*ListTasksOutput, error) {
		filter := domain.TaskFilter{
			Limit:  input.Limit,
			Offset: input.Offset,
		}
		if input.Status != "" {
			s := domain.TaskStatus(input.Status)
			filter.Status = &s
		}

		tasks, err := svc.ListTasks(ctx, filter)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]TaskResponse, len(tasks))
		for i, t := range tasks {
			resp[i] = toTaskResponse(t)
		}
		return &ListTasksOutput{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "requeue-notification-task",
		Method:      http.MethodPost,
		Path:        "/api/v1/notifications/{id}/requeue",
		Summary:     "Re-queue a failed notification as a new task",
		Tags:        []string{"Notifications"},
	}, func(ctx context.Context, input *RequeueTaskInput) (*RequeueTaskOutput, error) {
		task, err := svc.RequeueTask(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &RequeueTaskOutput{Body: toTaskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deferred-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/deferred",
		Summary:     "List events still waiting for their tenant",
		Tags:        []string{"Events"},
	}, func(ctx context.Context, input *ListDeferredInput) (*ListDeferredOutput, error) {
		events, err := svc.ListDeferredEvents(ctx, input.Limit)
		if err != nil {
			return nil, toHumaError(err)
		}

		resp := make([]DeferredEventResponse, len(events))
		for i, e := range events {
			resp[i] = toDeferredResponse(e)
		}
		return &ListDeferredOutput{Body: resp}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrTenantNotFound) {
		return huma.Error404NotFound("tenant not found")
	}
	if errors.Is(err, domain.ErrTaskNotFound) {
		return huma.Error404NotFound("task not found")
	}

	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		return huma.Error409Conflict(conflictErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
