package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/delivery"
	"github.com/lalithlochan/applytrack/internal/events"
)

type mockStore struct {
	mu        sync.Mutex
	created   []*db.Notification
	sent      map[uuid.UUID]bool
	createErr error
	markErr   error
}

func newMockStore() *mockStore {
	return &mockStore{sent: make(map[uuid.UUID]bool)}
}

func (m *mockStore) CreateNotification(ctx context.Context, notif *db.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if notif.EmailSent {
		return errors.New("notification stored with email_sent=true")
	}
	notif.CreatedAt = time.Now()
	m.created = append(m.created, notif)
	return nil
}

func (m *mockStore) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.sent[id] = true
	return nil
}

type mockDirectory struct {
	users map[int64]*db.User
	err   error
}

func (m *mockDirectory) GetUser(ctx context.Context, id int64) (*db.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return u, nil
}

func directory(ids ...int64) *mockDirectory {
	d := &mockDirectory{users: make(map[int64]*db.User)}
	for _, id := range ids {
		d.users[id] = &db.User{ID: id, Name: "User", Email: "user@example.com", EmailNotifications: true}
	}
	return d
}

type mockChannel struct {
	mu    sync.Mutex
	msgs  []delivery.Message
	err   error
	panic bool
}

func (m *mockChannel) Send(ctx context.Context, msg delivery.Message) error {
	if m.panic {
		panic("smtp client exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return m.err
}

func (m *mockChannel) Name() string { return "mock" }

func testApplication() db.Application {
	return db.Application{
		ID:       1,
		UserID:   7,
		Company:  "Acme",
		Position: "Backend Engineer",
		Status:   db.StatusInterview,
	}
}

func newTestDispatcher(store *mockStore, dir *mockDirectory, ch *mockChannel) *Dispatcher {
	return NewDispatcher(store, dir, ch, Config{BaseURL: "https://app.example.com/"}, zap.NewNop())
}

func TestStatusChanged_CreatesOneNotification(t *testing.T) {
	store, ch := newMockStore(), &mockChannel{}
	d := newTestDispatcher(store, directory(7), ch)

	notif, err := d.StatusChanged(context.Background(), testApplication(), db.StatusApplied)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(store.created))
	}
	if notif.UserID != 7 {
		t.Errorf("expected user 7, got %d", notif.UserID)
	}
	if notif.Type != db.TypeApplicationStatusChanged {
		t.Errorf("expected type application_status_changed, got %s", notif.Type)
	}
	if notif.Metadata["old_status"] != "Applied" || notif.Metadata["new_status"] != "Interview" {
		t.Errorf("unexpected metadata %v", notif.Metadata)
	}
	if notif.RelatedEntity == nil || notif.RelatedEntity.Type != db.EntityApplication || notif.RelatedEntity.ID != 1 {
		t.Errorf("unexpected related entity %+v", notif.RelatedEntity)
	}
	if notif.ActionURL == nil || *notif.ActionURL != "https://app.example.com/applications/1" {
		t.Errorf("unexpected action url %v", notif.ActionURL)
	}
	if !notif.EmailSent || !store.sent[notif.ID] {
		t.Error("expected email_sent to be recorded")
	}
	if len(ch.msgs) != 1 || ch.msgs[0].Template != delivery.TemplateStatusUpdate {
		t.Errorf("expected one status_update email, got %+v", ch.msgs)
	}
}

func TestDelivery_ChannelErrorIsSwallowed(t *testing.T) {
	store := newMockStore()
	ch := &mockChannel{err: errors.New("ses: MessageRejected")}
	d := newTestDispatcher(store, directory(7), ch)

	notif, err := d.StatusChanged(context.Background(), testApplication(), db.StatusApplied)
	if err != nil {
		t.Fatalf("delivery error escaped: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected notification to persist, got %d", len(store.created))
	}
	if notif.EmailSent || store.sent[notif.ID] {
		t.Error("expected email_sent to stay false")
	}
}

func TestDelivery_ChannelPanicIsSwallowed(t *testing.T) {
	store := newMockStore()
	d := newTestDispatcher(store, directory(7), &mockChannel{panic: true})

	notif, err := d.InterviewScheduled(context.Background(), testApplication())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notif.EmailSent {
		t.Error("expected email_sent to stay false after panic")
	}
	if len(store.created) != 1 {
		t.Errorf("expected 1 notification, got %d", len(store.created))
	}
}

func TestDelivery_RecipientLookupFailure(t *testing.T) {
	store := newMockStore()
	dir := &mockDirectory{err: errors.New("users table unavailable")}
	d := newTestDispatcher(store, dir, &mockChannel{})

	notif, err := d.StatusChanged(context.Background(), testApplication(), db.StatusApplied)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notif.EmailSent {
		t.Error("expected email_sent false")
	}
}

func TestDelivery_OptedOutUserGetsNoEmail(t *testing.T) {
	store, ch := newMockStore(), &mockChannel{}
	dir := directory(7)
	dir.users[7].EmailNotifications = false
	d := newTestDispatcher(store, dir, ch)

	notif, err := d.StatusChanged(context.Background(), testApplication(), db.StatusApplied)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.msgs) != 0 {
		t.Errorf("expected no email, got %d", len(ch.msgs))
	}
	if notif.EmailSent {
		t.Error("expected email_sent false")
	}
}

func TestDelivery_MarkSentFailureKeepsNotification(t *testing.T) {
	store := newMockStore()
	store.markErr = errors.New("connection reset")
	d := newTestDispatcher(store, directory(7), &mockChannel{})

	notif, err := d.StatusChanged(context.Background(), testApplication(), db.StatusApplied)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notif.EmailSent {
		t.Error("expected email_sent false when it could not be recorded")
	}
}

func TestSystem_SkipsDelivery(t *testing.T) {
	store, ch := newMockStore(), &mockChannel{}
	d := newTestDispatcher(store, directory(7), ch)

	notif, err := d.System(context.Background(), 7, "Maintenance", "We will be down at midnight.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.msgs) != 0 {
		t.Errorf("expected no email for system notification, got %d", len(ch.msgs))
	}
	if notif.Type != db.TypeSystem || notif.EmailSent {
		t.Errorf("unexpected notification %+v", notif)
	}
}

func TestPersistenceErrorIsReturned(t *testing.T) {
	store, ch := newMockStore(), &mockChannel{}
	store.createErr = errors.New("db down")
	d := newTestDispatcher(store, directory(7), ch)

	if _, err := d.StatusChanged(context.Background(), testApplication(), db.StatusApplied); err == nil {
		t.Fatal("expected persistence error")
	}
	if len(ch.msgs) != 0 {
		t.Error("email must not be attempted before the notification is stored")
	}
}

func TestSendBatch_SkipsUnknownUsers(t *testing.T) {
	store, ch := newMockStore(), &mockChannel{}
	d := newTestDispatcher(store, directory(7, 8), ch)

	created, err := d.SendBatch(context.Background(), []int64{7, 404, 8}, "Reminder", "Update your applications.", db.TypeGeneral)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 2 || len(store.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(store.created))
	}
	if store.created[0].UserID != 7 || store.created[1].UserID != 8 {
		t.Errorf("unexpected recipients %d, %d", store.created[0].UserID, store.created[1].UserID)
	}
}

func TestSendBatch_ContinuesPastFailures(t *testing.T) {
	store := newMockStore()
	dir := directory(7, 8)
	d := newTestDispatcher(store, dir, &mockChannel{err: errors.New("smtp down")})

	store.createErr = nil
	created, err := d.SendBatch(context.Background(), []int64{7, 8}, "t", "m", db.TypeGeneral)
	if err != nil {
		t.Fatalf("delivery failures must not fail the batch: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(created))
	}

	store.createErr = errors.New("db down")
	created, err = d.SendBatch(context.Background(), []int64{7, 8}, "t", "m", db.TypeGeneral)
	if err == nil {
		t.Fatal("expected joined persistence error")
	}
	if len(created) != 0 {
		t.Errorf("expected no notifications, got %d", len(created))
	}
	if !strings.Contains(err.Error(), "user 7") || !strings.Contains(err.Error(), "user 8") {
		t.Errorf("expected both users in error, got %v", err)
	}
}

func TestTemplateFor(t *testing.T) {
	tests := []struct {
		typ  db.NotificationType
		want delivery.Template
	}{
		{db.TypeApplicationStatusChanged, delivery.TemplateStatusUpdate},
		{db.TypeApplicationCreated, delivery.TemplateStatusUpdate},
		{db.TypeInterviewScheduled, delivery.TemplateInterview},
		{db.TypeInterviewReminder, delivery.TemplateInterview},
		{db.TypeDeadlineApproaching, delivery.TemplateReminder},
		{db.TypeFollowUpReminder, delivery.TemplateReminder},
		{db.TypeDocumentUploaded, delivery.TemplateGeneric},
		{db.TypeJobPostingNew, delivery.TemplateGeneric},
		{db.TypeGeneral, delivery.TemplateGeneric},
		{db.TypeSystem, delivery.TemplateNone},
	}

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			if got := TemplateFor(tt.typ); got != tt.want {
				t.Errorf("TemplateFor(%s) = %s, want %s", tt.typ, got, tt.want)
			}
		})
	}
}

func TestTemplateFor_EveryTypeMapped(t *testing.T) {
	for typ := db.NotificationType(0); typ < db.NumNotificationTypes; typ++ {
		if typ == db.TypeSystem {
			continue
		}
		if TemplateFor(typ) == delivery.TemplateNone {
			t.Errorf("%s has no email template", typ)
		}
	}
}

func TestEntryPoints(t *testing.T) {
	interview := time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)
	app := testApplication()
	app.InterviewDate = &interview

	tests := []struct {
		name    string
		call    func(d *Dispatcher) (*db.Notification, error)
		typ     db.NotificationType
		related string
	}{
		{"created", func(d *Dispatcher) (*db.Notification, error) {
			return d.ApplicationCreated(context.Background(), app)
		}, db.TypeApplicationCreated, db.EntityApplication},
		{"interview scheduled", func(d *Dispatcher) (*db.Notification, error) {
			return d.InterviewScheduled(context.Background(), app)
		}, db.TypeInterviewScheduled, db.EntityApplication},
		{"interview reminder", func(d *Dispatcher) (*db.Notification, error) {
			return d.InterviewReminder(context.Background(), app)
		}, db.TypeInterviewReminder, db.EntityApplication},
		{"document uploaded", func(d *Dispatcher) (*db.Notification, error) {
			return d.DocumentUploaded(context.Background(), 7, Document{ID: 3, Name: "resume.pdf", Kind: "resume"})
		}, db.TypeDocumentUploaded, db.EntityDocument},
		{"deadline approaching", func(d *Dispatcher) (*db.Notification, error) {
			return d.DeadlineApproaching(context.Background(), app)
		}, db.TypeDeadlineApproaching, db.EntityApplication},
		{"follow up", func(d *Dispatcher) (*db.Notification, error) {
			return d.FollowUpReminder(context.Background(), app, 14)
		}, db.TypeFollowUpReminder, db.EntityApplication},
		{"job posting", func(d *Dispatcher) (*db.Notification, error) {
			return d.JobPostingNew(context.Background(), 7, JobPosting{ID: 9, Title: "SRE", Company: "Globex"})
		}, db.TypeJobPostingNew, db.EntityJobPosting},
		{"general", func(d *Dispatcher) (*db.Notification, error) {
			return d.General(context.Background(), 7, "Hello", "World", map[string]any{"source": "admin"})
		}, db.TypeGeneral, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, ch := newMockStore(), &mockChannel{}
			d := newTestDispatcher(store, directory(7), ch)

			notif, err := tt.call(d)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(store.created) != 1 {
				t.Fatalf("expected exactly 1 notification, got %d", len(store.created))
			}
			if notif.Type != tt.typ {
				t.Errorf("expected type %s, got %s", tt.typ, notif.Type)
			}
			if notif.Title == "" || notif.Message == "" {
				t.Error("expected rendered title and message")
			}
			if tt.related == "" && notif.RelatedEntity != nil {
				t.Errorf("expected no related entity, got %+v", notif.RelatedEntity)
			}
			if tt.related != "" && (notif.RelatedEntity == nil || notif.RelatedEntity.Type != tt.related) {
				t.Errorf("expected related %s, got %+v", tt.related, notif.RelatedEntity)
			}
			if len(ch.msgs) != 1 || ch.msgs[0].Template != TemplateFor(tt.typ) {
				t.Errorf("expected one %s email, got %+v", TemplateFor(tt.typ), ch.msgs)
			}
		})
	}
}

func TestHandle(t *testing.T) {
	store := newMockStore()
	d := newTestDispatcher(store, directory(7), &mockChannel{})

	evs := []events.Event{
		events.StatusChanged(testApplication(), db.StatusApplied),
		events.ApplicationCreated(testApplication()),
		events.InterviewScheduled(testApplication()),
		{Kind: "unknown"},
	}
	for _, ev := range evs {
		if err := d.Handle(context.Background(), ev); err != nil {
			t.Fatalf("Handle(%s): %v", ev.Kind, err)
		}
	}

	if len(store.created) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(store.created))
	}
	want := []db.NotificationType{db.TypeApplicationStatusChanged, db.TypeApplicationCreated, db.TypeInterviewScheduled}
	for i, w := range want {
		if store.created[i].Type != w {
			t.Errorf("notification %d: expected %s, got %s", i, w, store.created[i].Type)
		}
	}
}
