package river_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	"github.com/neolearn/subsync/internal/adapter/fsm"
	riveradapter "github.com/neolearn/subsync/internal/adapter/river"
	"github.com/neolearn/subsync/internal/adapter/sqlite"
	"github.com/neolearn/subsync/internal/app"
	"github.com/neolearn/subsync/internal/domain"
)

type captureMessenger struct {
	sent []string
}

func (m *captureMessenger) Send(_ context.Context, to, subject, body string) error {
	m.sent = append(m.sent, to)
	return nil
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

func TestPeriodicDispatch_DeliversPendingTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	repo := sqlite.NewTenantRepository(store)
	queue := sqlite.NewNotificationQueue(store)
	audit := sqlite.NewAuditLog(store)
	deferred := sqlite.NewDeferredEventStore(store)
	messenger := &captureMessenger{}

	tenant := domain.NewTenant("t-1", domain.CheckoutData{
		CompanyName:      "Acme Corp",
		ContactName:      "Jane Doe",
		ContactEmail:     "billing@acme.test",
		CustomerRef:      "cus_001",
		SubscriptionRef:  "sub_001",
		PlanRef:          "plan_pro",
		MaxCollaborators: 5,
		PeriodDays:       30,
	}, time.Now().UTC())
	if _, _, err := repo.Upsert(ctx, tenant); err != nil {
		t.Fatalf("seeding tenant: %v", err)
	}

	task := domain.NewNotificationTask("task-1", "t-1", domain.NoticePaymentDue)
	if err := queue.Enqueue(ctx, task); err != nil {
		t.Fatalf("enqueueing task: %v", err)
	}

	dispatcher := app.NewDispatcher(queue, repo, audit, messenger, fsm.New(), 10, logger)
	synchronizer := app.NewSynchronizer(repo, queue, deferred, logger)

	client, err := riveradapter.Setup(ctx, db, dispatcher, synchronizer, time.Minute, time.Minute, logger)
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	// Subscribe to job completions before starting so we don't miss events.
	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()

	if err := client.Start(ctx); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})

	// Both periodic jobs run on start; wait for the dispatch job.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case event := <-subscribeChan:
			if event.Job.Kind != "notifications.dispatch" {
				continue
			}
			got, err := queue.GetByID(ctx, "task-1")
			if err != nil {
				t.Fatalf("GetByID failed: %v", err)
			}
			if got.Status != domain.TaskSent {
				t.Errorf("Status = %q, want %q", got.Status, domain.TaskSent)
			}
			if len(messenger.sent) != 1 || messenger.sent[0] != "billing@acme.test" {
				t.Errorf("sent = %v, want one delivery to billing@acme.test", messenger.sent)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for dispatch job")
		}
	}
}
