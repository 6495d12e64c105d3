package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

const taskColumns = `id, tenant_id, kind, event_id, status, error_message, created_at, processed_at`

// NotificationQueue implements domain.NotificationQueue using SQLite.
type NotificationQueue struct {
	store *Store
}

// NewNotificationQueue returns a notification queue backed by the store.
func NewNotificationQueue(store *Store) *NotificationQueue {
	return &NotificationQueue{store: store}
}

// Enqueue inserts a pending task. Tasks carrying an event id are deduped
// per (tenant, kind, event): a redelivered provider event inserts
// nothing, which keeps handlers idempotent under retry.
func (q *NotificationQueue) Enqueue(ctx context.Context, task domain.NotificationTask) error {
	_, err := q.store.db.ExecContext(ctx,
		`INSERT INTO notification_tasks (`+taskColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		task.ID, task.TenantID, string(task.Kind), task.EventID,
		string(task.Status), task.ErrorMessage, task.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		if task.EventID != "" && isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("enqueueing task: %w", err)
	}
	return nil
}

// Claim transitions up to limit of the oldest pending tasks to
// processing. The conditional UPDATE guards each row individually, so a
// task selected by two concurrent claimants is handed to exactly one of
// them; the loser simply skips it.
func (q *NotificationQueue) Claim(ctx context.Context, limit int) ([]domain.NotificationTask, error) {
	rows, err := q.store.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM notification_tasks
		 WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		string(domain.TaskPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting pending tasks: %w", err)
	}
	defer rows.Close()

	var candidates []domain.NotificationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("selecting pending tasks: %w", err)
	}

	var claimed []domain.NotificationTask
	for _, task := range candidates {
		result, err := q.store.db.ExecContext(ctx,
			`UPDATE notification_tasks SET status = ? WHERE id = ? AND status = ?`,
			string(domain.TaskProcessing), task.ID, string(domain.TaskPending),
		)
		if err != nil {
			return claimed, fmt.Errorf("claiming task: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return claimed, fmt.Errorf("checking rows affected: %w", err)
		}
		if affected == 0 {
			continue
		}
		task.Status = domain.TaskProcessing
		claimed = append(claimed, task)
	}

	return claimed, nil
}

func (q *NotificationQueue) MarkSent(ctx context.Context, id string, at time.Time) error {
	return q.finish(ctx, id, domain.TaskEventMarkSent, domain.TaskSent, at, "")
}

func (q *NotificationQueue) MarkFailed(ctx context.Context, id string, at time.Time, errMsg string) error {
	return q.finish(ctx, id, domain.TaskEventMarkFailed, domain.TaskFailed, at, errMsg)
}

func (q *NotificationQueue) finish(ctx context.Context, id string, event domain.TaskEvent, status domain.TaskStatus, at time.Time, errMsg string) error {
	result, err := q.store.db.ExecContext(ctx,
		`UPDATE notification_tasks SET status = ?, error_message = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		string(status), errMsg, at.UTC().Format(timeFormat),
		id, string(domain.TaskProcessing),
	)
	if err != nil {
		return fmt.Errorf("finishing task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing task from one that exists outside
		// processing.
		var current string
		err := q.store.db.QueryRowContext(ctx,
			`SELECT status FROM notification_tasks WHERE id = ?`, id,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("finishing task: %w", err)
		}
		return &domain.TransitionError{Event: event, Current: domain.TaskStatus(current)}
	}

	return nil
}

func (q *NotificationQueue) GetByID(ctx context.Context, id string) (domain.NotificationTask, error) {
	rows, err := q.store.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM notification_tasks WHERE id = ?`, id,
	)
	if err != nil {
		return domain.NotificationTask{}, fmt.Errorf("getting task: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.NotificationTask{}, fmt.Errorf("getting task: %w", err)
		}
		return domain.NotificationTask{}, domain.ErrTaskNotFound
	}

	return scanTask(rows)
}

func (q *NotificationQueue) List(ctx context.Context, filter domain.TaskFilter) ([]domain.NotificationTask, error) {
	query := `SELECT ` + taskColumns + ` FROM notification_tasks`
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := q.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.NotificationTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func scanTask(rows *sql.Rows) (domain.NotificationTask, error) {
	var t domain.NotificationTask
	var kind, status, createdAt string
	var processedAt sql.NullString

	err := rows.Scan(&t.ID, &t.TenantID, &kind, &t.EventID, &status, &t.ErrorMessage, &createdAt, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotificationTask{}, domain.ErrTaskNotFound
		}
		return domain.NotificationTask{}, fmt.Errorf("scanning task: %w", err)
	}

	t.Kind = domain.NotificationKind(kind)
	t.Status = domain.TaskStatus(status)
	t.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	if processedAt.Valid {
		at, _ := time.Parse(timeFormat, processedAt.String)
		t.ProcessedAt = &at
	}

	return t, nil
}
