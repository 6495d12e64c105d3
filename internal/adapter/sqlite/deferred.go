package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

// DeferredEventStore implements domain.DeferredEventStore using SQLite.
type DeferredEventStore struct {
	store *Store
}

// NewDeferredEventStore returns a deferred event store backed by the store.
func NewDeferredEventStore(store *Store) *DeferredEventStore {
	return &DeferredEventStore{store: store}
}

// Save records an event awaiting its tenant. Redelivery of an event
// already on file is a no-op; the sweep replays each event once, not
// once per delivery.
func (s *DeferredEventStore) Save(ctx context.Context, event domain.DeferredEvent) error {
	_, err := s.store.db.ExecContext(ctx,
		`INSERT INTO deferred_events (event_id, kind, subscription_ref, payload, attempts, received_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, string(event.Kind), event.SubscriptionRef,
		string(event.Payload), event.Attempts,
		event.ReceivedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("saving deferred event: %w", err)
	}
	return nil
}

func (s *DeferredEventStore) ListUnresolved(ctx context.Context, limit int) ([]domain.DeferredEvent, error) {
	query := `SELECT id, event_id, kind, subscription_ref, payload, attempts, received_at, resolved_at
		 FROM deferred_events WHERE resolved_at IS NULL ORDER BY received_at ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deferred events: %w", err)
	}
	defer rows.Close()

	var events []domain.DeferredEvent
	for rows.Next() {
		e, err := scanDeferred(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (s *DeferredEventStore) MarkResolved(ctx context.Context, id int64, at time.Time) error {
	result, err := s.store.db.ExecContext(ctx,
		`UPDATE deferred_events SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		at.UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("resolving deferred event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("deferred event %d not found or already resolved", id)
	}

	return nil
}

func (s *DeferredEventStore) RecordAttempt(ctx context.Context, id int64) error {
	_, err := s.store.db.ExecContext(ctx,
		`UPDATE deferred_events SET attempts = attempts + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("recording deferred attempt: %w", err)
	}
	return nil
}

func scanDeferred(rows *sql.Rows) (domain.DeferredEvent, error) {
	var e domain.DeferredEvent
	var kind, payload, receivedAt string
	var resolvedAt sql.NullString

	err := rows.Scan(&e.ID, &e.EventID, &kind, &e.SubscriptionRef, &payload, &e.Attempts, &receivedAt, &resolvedAt)
	if err != nil {
		return domain.DeferredEvent{}, fmt.Errorf("scanning deferred event: %w", err)
	}

	e.Kind = domain.EventKind(kind)
	e.Payload = []byte(payload)
	e.ReceivedAt, _ = time.Parse(timeFormat, receivedAt)
	if resolvedAt.Valid {
		at, _ := time.Parse(timeFormat, resolvedAt.String)
		e.ResolvedAt = &at
	}

	return e, nil
}
