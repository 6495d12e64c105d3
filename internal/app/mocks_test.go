package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/neolearn/subsync/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Tenant repository ---

type mockRepo struct {
	tenants       map[string]domain.Tenant
	collaborators map[string]int
	updateErr     error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		tenants:       make(map[string]domain.Tenant),
		collaborators: make(map[string]int),
	}
}

func (m *mockRepo) GetByID(_ context.Context, id string) (domain.Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return t, nil
}

func (m *mockRepo) GetByCustomerRef(_ context.Context, ref string) (domain.Tenant, error) {
	for _, t := range m.tenants {
		if t.ProviderCustomerRef == ref {
			return t, nil
		}
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (m *mockRepo) GetBySubscriptionRef(_ context.Context, ref string) (domain.Tenant, error) {
	for _, t := range m.tenants {
		if t.ProviderSubscriptionRef == ref {
			return t, nil
		}
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (m *mockRepo) GetByContactEmail(_ context.Context, email string) (domain.Tenant, error) {
	for _, t := range m.tenants {
		if t.ContactEmail == email {
			return t, nil
		}
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

// Upsert mirrors the SQLite adapter's semantics: customer ref first,
// contact email second, insert last.
func (m *mockRepo) Upsert(ctx context.Context, candidate domain.Tenant) (domain.Tenant, bool, error) {
	existing, err := m.GetByCustomerRef(ctx, candidate.ProviderCustomerRef)
	if errors.Is(err, domain.ErrTenantNotFound) {
		existing, err = m.GetByContactEmail(ctx, candidate.ContactEmail)
	}
	if err == nil {
		merged := domain.MergeProvisioned(existing, candidate)
		m.tenants[merged.ID] = merged
		return merged, false, nil
	}

	m.tenants[candidate.ID] = candidate
	return candidate, true, nil
}

func (m *mockRepo) Update(_ context.Context, t domain.Tenant) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.tenants[t.ID]; !ok {
		return domain.ErrTenantNotFound
	}
	m.tenants[t.ID] = t
	return nil
}

func (m *mockRepo) List(_ context.Context, _ domain.ListFilter) ([]domain.Tenant, error) {
	out := make([]domain.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockRepo) CountActiveCollaborators(_ context.Context, tenantID string) (int, error) {
	return m.collaborators[tenantID], nil
}

// --- Notification queue ---

type mockQueue struct {
	tasks      map[string]domain.NotificationTask
	order      []string
	enqueueErr error
}

func newMockQueue() *mockQueue {
	return &mockQueue{tasks: make(map[string]domain.NotificationTask)}
}

// Enqueue mirrors the SQLite adapter: tasks carrying an event id are
// deduped per (tenant, kind, event).
func (m *mockQueue) Enqueue(_ context.Context, task domain.NotificationTask) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	if task.EventID != "" {
		for _, id := range m.order {
			existing := m.tasks[id]
			if existing.TenantID == task.TenantID && existing.Kind == task.Kind && existing.EventID == task.EventID {
				return nil
			}
		}
	}
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	return nil
}

func (m *mockQueue) Claim(_ context.Context, limit int) ([]domain.NotificationTask, error) {
	var claimed []domain.NotificationTask
	for _, id := range m.order {
		if len(claimed) == limit {
			break
		}
		task := m.tasks[id]
		if task.Status != domain.TaskPending {
			continue
		}
		task.Status = domain.TaskProcessing
		m.tasks[id] = task
		claimed = append(claimed, task)
	}
	return claimed, nil
}

func (m *mockQueue) MarkSent(_ context.Context, id string, at time.Time) error {
	task, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.Status = domain.TaskSent
	task.ProcessedAt = &at
	m.tasks[id] = task
	return nil
}

func (m *mockQueue) MarkFailed(_ context.Context, id string, at time.Time, errMsg string) error {
	task, ok := m.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	task.Status = domain.TaskFailed
	task.ProcessedAt = &at
	task.ErrorMessage = errMsg
	m.tasks[id] = task
	return nil
}

func (m *mockQueue) GetByID(_ context.Context, id string) (domain.NotificationTask, error) {
	task, ok := m.tasks[id]
	if !ok {
		return domain.NotificationTask{}, domain.ErrTaskNotFound
	}
	return task, nil
}

func (m *mockQueue) List(_ context.Context, filter domain.TaskFilter) ([]domain.NotificationTask, error) {
	var out []domain.NotificationTask
	for _, id := range m.order {
		task := m.tasks[id]
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (m *mockQueue) byStatus(status domain.TaskStatus) []domain.NotificationTask {
	var out []domain.NotificationTask
	for _, id := range m.order {
		if m.tasks[id].Status == status {
			out = append(out, m.tasks[id])
		}
	}
	return out
}

// --- Deferred event store ---

type mockDeferred struct {
	events []domain.DeferredEvent
	nextID int64
}

// Save mirrors the SQLite adapter: redelivery of an event already on
// file is a no-op.
func (m *mockDeferred) Save(_ context.Context, event domain.DeferredEvent) error {
	for _, e := range m.events {
		if e.EventID == event.EventID {
			return nil
		}
	}
	m.nextID++
	event.ID = m.nextID
	m.events = append(m.events, event)
	return nil
}

func (m *mockDeferred) ListUnresolved(_ context.Context, limit int) ([]domain.DeferredEvent, error) {
	var out []domain.DeferredEvent
	for _, e := range m.events {
		if len(out) == limit {
			break
		}
		if e.ResolvedAt == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockDeferred) MarkResolved(_ context.Context, id int64, at time.Time) error {
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].ResolvedAt = &at
			return nil
		}
	}
	return errors.New("deferred event not found")
}

func (m *mockDeferred) RecordAttempt(_ context.Context, id int64) error {
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].Attempts++
			return nil
		}
	}
	return errors.New("deferred event not found")
}

func (m *mockDeferred) unresolved() []domain.DeferredEvent {
	var out []domain.DeferredEvent
	for _, e := range m.events {
		if e.ResolvedAt == nil {
			out = append(out, e)
		}
	}
	return out
}

// --- Identity directory ---

type mockDirectory struct {
	identities map[string]domain.Identity // keyed by email
	invites    []domain.InviteMetadata
	findErr    error
	createErr  error
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{identities: make(map[string]domain.Identity)}
}

func (m *mockDirectory) FindByEmail(_ context.Context, email string) (domain.Identity, error) {
	if m.findErr != nil {
		return domain.Identity{}, m.findErr
	}
	identity, ok := m.identities[email]
	if !ok {
		return domain.Identity{}, domain.ErrIdentityNotFound
	}
	return identity, nil
}

func (m *mockDirectory) CreateWithInvite(_ context.Context, email string, meta domain.InviteMetadata) (domain.Identity, error) {
	if m.createErr != nil {
		return domain.Identity{}, m.createErr
	}
	identity := domain.Identity{
		ID:        "ident-" + email,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	m.identities[email] = identity
	m.invites = append(m.invites, meta)
	return identity, nil
}

// --- Profile repository ---

type mockProfiles struct {
	profiles  []domain.Profile
	createErr error
}

func (m *mockProfiles) Create(_ context.Context, profile domain.Profile) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.profiles = append(m.profiles, profile)
	return nil
}

// --- Messenger ---

type sentMessage struct {
	to      string
	subject string
	body    string
}

type mockMessenger struct {
	sent    []sentMessage
	sendErr error
}

func (m *mockMessenger) Send(_ context.Context, to, subject, body string) error {
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

// --- Task transition validator ---

// tableValidator checks transitions against the domain table, like the
// FSM adapter does in production.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.TaskStatus, event domain.TaskEvent) (domain.TaskStatus, error) {
	for _, tr := range domain.TaskTransitions {
		if tr.Event == event && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.TransitionError{Event: event, Current: current}
}
