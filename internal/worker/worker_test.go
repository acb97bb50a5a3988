package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/db"
	"github.com/lalithlochan/applytrack/internal/events"
	"github.com/lalithlochan/applytrack/internal/memstore"
)

type mockNotifier struct {
	interviews []int64
	deadlines  []int64
	err        error
}

func (m *mockNotifier) InterviewReminder(ctx context.Context, app db.Application) (*db.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.interviews = append(m.interviews, app.ID)
	return &db.Notification{ID: uuid.New(), UserID: app.UserID, Type: db.TypeInterviewReminder}, nil
}

func (m *mockNotifier) DeadlineApproaching(ctx context.Context, app db.Application) (*db.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.deadlines = append(m.deadlines, app.ID)
	return &db.Notification{ID: uuid.New(), UserID: app.UserID, Type: db.TypeDeadlineApproaching}, nil
}

func newReminders(t *testing.T, notifier Notifier) (*Reminders, *memstore.Store, time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	store := memstore.New()
	soon := now.Add(3 * time.Hour)
	farAway := now.Add(7 * 24 * time.Hour)
	past := now.Add(-time.Hour)
	store.PutApplication(db.Application{ID: 1, UserID: 7, InterviewDate: &soon})
	store.PutApplication(db.Application{ID: 2, UserID: 7, InterviewDate: &farAway})
	store.PutApplication(db.Application{ID: 3, UserID: 8, Deadline: &soon})
	store.PutApplication(db.Application{ID: 4, UserID: 8, InterviewDate: &past})

	w := NewReminders(store, notifier, Config{Lookahead: 24 * time.Hour}, zap.NewNop())
	w.now = func() time.Time { return now }
	return w, store, now
}

func TestReminders_SweepSendsDueRemindersOnce(t *testing.T) {
	notifier := &mockNotifier{}
	w, _, _ := newReminders(t, notifier)

	w.Sweep(context.Background())

	if len(notifier.interviews) != 1 || notifier.interviews[0] != 1 {
		t.Errorf("expected interview reminder for application 1, got %v", notifier.interviews)
	}
	if len(notifier.deadlines) != 1 || notifier.deadlines[0] != 3 {
		t.Errorf("expected deadline reminder for application 3, got %v", notifier.deadlines)
	}

	w.Sweep(context.Background())

	if len(notifier.interviews) != 1 || len(notifier.deadlines) != 1 {
		t.Errorf("reminders repeated: interviews=%v deadlines=%v", notifier.interviews, notifier.deadlines)
	}
}

func TestReminders_FailedReminderIsRetried(t *testing.T) {
	notifier := &mockNotifier{err: errors.New("database unavailable")}
	w, store, _ := newReminders(t, notifier)

	w.Sweep(context.Background())

	app, _ := store.GetApplication(context.Background(), 1)
	if app.InterviewRemindedAt != nil {
		t.Fatal("failed reminder must not be stamped")
	}

	notifier.err = nil
	w.Sweep(context.Background())

	if len(notifier.interviews) != 1 {
		t.Errorf("expected retry to send the reminder, got %v", notifier.interviews)
	}
}

func TestNewReminders_Defaults(t *testing.T) {
	w := NewReminders(memstore.New(), &mockNotifier{}, Config{}, zap.NewNop())

	if w.config.PollInterval != 15*time.Minute {
		t.Errorf("expected 15m poll interval, got %v", w.config.PollInterval)
	}
	if w.config.Lookahead != 24*time.Hour {
		t.Errorf("expected 24h lookahead, got %v", w.config.Lookahead)
	}
	if w.config.BatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", w.config.BatchSize)
	}
}

func TestReminders_StartStopsOnCancel(t *testing.T) {
	w := NewReminders(memstore.New(), &mockNotifier{}, Config{PollInterval: time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

type fakeQueue struct {
	deliveries []events.Delivery
	receiveErr error
	acked      []string
}

func (q *fakeQueue) Receive(ctx context.Context, max int32) ([]events.Delivery, error) {
	if q.receiveErr != nil {
		return nil, q.receiveErr
	}
	out := q.deliveries
	q.deliveries = nil
	return out, nil
}

func (q *fakeQueue) Ack(ctx context.Context, receiptHandle string) error {
	q.acked = append(q.acked, receiptHandle)
	return nil
}

func TestConsumer_AcksOnlyHandledEvents(t *testing.T) {
	queue := &fakeQueue{deliveries: []events.Delivery{
		{Event: events.StatusChanged(db.Application{ID: 1, UserID: 7, Status: db.StatusOffer}, db.StatusApplied), ReceiptHandle: "ok"},
		{Event: events.StatusChanged(db.Application{ID: 2, UserID: 7, Status: db.StatusOffer}, db.StatusApplied), ReceiptHandle: "fails"},
	}}

	handler := events.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		if ev.Application.ID == 2 {
			return errors.New("insert notification: connection reset")
		}
		return nil
	})

	c := NewConsumer(queue, handler, ConsumerConfig{}, zap.NewNop())
	if err := c.Poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(queue.acked) != 1 || queue.acked[0] != "ok" {
		t.Errorf("expected only the handled message to be acked, got %v", queue.acked)
	}
}

func TestConsumer_ReceiveError(t *testing.T) {
	queue := &fakeQueue{receiveErr: errors.New("sqs unavailable")}
	c := NewConsumer(queue, events.HandlerFunc(func(context.Context, events.Event) error { return nil }), ConsumerConfig{}, zap.NewNop())

	if err := c.Poll(context.Background()); err == nil {
		t.Fatal("expected receive error")
	}
}

func TestConsumer_StartStopsOnCancel(t *testing.T) {
	queue := &fakeQueue{receiveErr: errors.New("sqs unavailable")}
	c := NewConsumer(queue, events.HandlerFunc(func(context.Context, events.Event) error { return nil }),
		ConsumerConfig{ErrorBackoff: time.Millisecond}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop after cancel")
	}
}
