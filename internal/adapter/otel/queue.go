package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neolearn/subsync/internal/domain"
)

// TracingQueue wraps a domain.NotificationQueue with OpenTelemetry tracing.
type TracingQueue struct {
	next   domain.NotificationQueue
	tracer trace.Tracer
}

// Compile-time check: TracingQueue implements domain.NotificationQueue.
var _ domain.NotificationQueue = (*TracingQueue)(nil)

// NewTracingQueue creates a tracing decorator around the given queue.
func NewTracingQueue(next domain.NotificationQueue) *TracingQueue {
	return &TracingQueue{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (q *TracingQueue) Enqueue(ctx context.Context, task domain.NotificationTask) error {
	ctx, span := q.tracer.Start(ctx, "NotificationQueue.Enqueue",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("task.kind", string(task.Kind)),
			attribute.String("tenant.id", task.TenantID),
		),
	)
	defer span.End()

	err := q.next.Enqueue(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (q *TracingQueue) Claim(ctx context.Context, limit int) ([]domain.NotificationTask, error) {
	ctx, span := q.tracer.Start(ctx, "NotificationQueue.Claim",
		trace.WithAttributes(attribute.Int("claim.limit", limit)),
	)
	defer span.End()

	tasks, err := q.next.Claim(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("claim.count", len(tasks)))
	}
	return tasks, err
}

func (q *TracingQueue) MarkSent(ctx context.Context, id string, at time.Time) error {
	ctx, span := q.tracer.Start(ctx, "NotificationQueue.MarkSent",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	err := q.next.MarkSent(ctx, id, at)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (q *TracingQueue) MarkFailed(ctx context.Context, id string, at time.Time, errMsg string) error {
	ctx, span := q.tracer.Start(ctx, "NotificationQueue.MarkFailed",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	err := q.next.MarkFailed(ctx, id, at, errMsg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (q *TracingQueue) GetByID(ctx context.Context, id string) (domain.NotificationTask, error) {
	ctx, span := q.tracer.Start(ctx, "NotificationQueue.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	task, err := q.next.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return task, err
}

func (q *TracingQueue) List(ctx context.Context, filter domain.TaskFilter) ([]domain.NotificationTask, error) {
	ctx, span := q.tracer.Start(ctx, "NotificationQueue.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Status != nil {
		span.SetAttributes(attribute.String("filter.status", string(*filter.Status)))
	}

	tasks, err := q.next.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(tasks)))
	}
	return tasks, err
}
