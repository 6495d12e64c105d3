package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

// AuditLog implements domain.AuditLog using SQLite. Rows are only ever
// inserted; there is no update or delete path.
type AuditLog struct {
	store *Store
}

// NewAuditLog returns an audit log backed by the store.
func NewAuditLog(store *Store) *AuditLog {
	return &AuditLog{store: store}
}

func (l *AuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	_, err := l.store.db.ExecContext(ctx,
		`INSERT INTO notification_audit (id, task_id, tenant_id, recipient, subject, body, outcome, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TaskID, entry.TenantID, entry.Recipient,
		entry.Subject, entry.Body, string(entry.Outcome),
		entry.ErrorMessage, entry.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// ListByTask returns the delivery attempts recorded for a task, oldest
// first.
func (l *AuditLog) ListByTask(ctx context.Context, taskID string) ([]domain.AuditEntry, error) {
	rows, err := l.store.db.QueryContext(ctx,
		`SELECT id, task_id, tenant_id, recipient, subject, body, outcome, error_message, created_at
		 FROM notification_audit WHERE task_id = ? ORDER BY created_at ASC`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var outcome, createdAt string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.TenantID, &e.Recipient, &e.Subject, &e.Body, &outcome, &e.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Outcome = domain.TaskStatus(outcome)
		e.CreatedAt, _ = time.Parse(timeFormat, createdAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
