// Package memstore keeps applications, notifications and users in memory.
// It satisfies the same interfaces as the Postgres repository and is used
// for STORAGE=memory and in tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/applytrack/internal/db"
)

type storedNotification struct {
	db.Notification
	seq int64
}

type Store struct {
	mu sync.RWMutex

	nextAppID int64
	seq       int64
	apps      map[int64]*db.Application
	notifs    map[uuid.UUID]*storedNotification
	users     map[int64]*db.User

	now func() time.Time
}

func New() *Store {
	return &Store{
		apps:   make(map[int64]*db.Application),
		notifs: make(map[uuid.UUID]*storedNotification),
		users:  make(map[int64]*db.User),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u db.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// PutApplication inserts or replaces an application with a caller-chosen
// ID. Missing timestamps are filled in.
func (s *Store) PutApplication(app db.Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = s.now()
	}
	if app.UpdatedAt.IsZero() {
		app.UpdatedAt = app.CreatedAt
	}
	if app.ID > s.nextAppID {
		s.nextAppID = app.ID
	}
	s.apps[app.ID] = &app
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyApplication(a *db.Application) *db.Application {
	c := *a
	c.InterviewDate = copyTime(a.InterviewDate)
	c.Deadline = copyTime(a.Deadline)
	c.InterviewRemindedAt = copyTime(a.InterviewRemindedAt)
	c.DeadlineRemindedAt = copyTime(a.DeadlineRemindedAt)
	return &c
}

func copyNotification(n *db.Notification) *db.Notification {
	c := *n
	c.ReadAt = copyTime(n.ReadAt)
	if n.Metadata != nil {
		c.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	if n.RelatedEntity != nil {
		ref := *n.RelatedEntity
		c.RelatedEntity = &ref
	}
	if n.ActionURL != nil {
		u := *n.ActionURL
		c.ActionURL = &u
	}
	return &c
}

func appNotFound(id int64) error {
	return fmt.Errorf("application %d: %w", id, db.ErrNotFound)
}

func notifNotFound(id uuid.UUID) error {
	return fmt.Errorf("notification %s: %w", id, db.ErrNotFound)
}

func (s *Store) CreateApplication(ctx context.Context, app *db.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app.Status == "" {
		app.Status = db.StatusApplied
	}
	s.nextAppID++
	app.ID = s.nextAppID
	app.CreatedAt = s.now()
	app.UpdatedAt = app.CreatedAt
	s.apps[app.ID] = copyApplication(app)
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id int64) (*db.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, appNotFound(id)
	}
	return copyApplication(app), nil
}

// ListApplicationsByUser returns a user's applications, oldest first.
func (s *Store) ListApplicationsByUser(ctx context.Context, userID int64) ([]*db.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*db.Application, 0)
	for _, app := range s.apps {
		if app.UserID == userID {
			out = append(out, copyApplication(app))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id int64, status db.Status) (*db.Application, db.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, "", appNotFound(id)
	}
	prev := app.Status
	app.Status = status
	app.UpdatedAt = s.now()
	return copyApplication(app), prev, nil
}

func (s *Store) UpdateInterviewDate(ctx context.Context, id int64, at *time.Time) (*db.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, appNotFound(id)
	}
	app.InterviewDate = copyTime(at)
	app.InterviewRemindedAt = nil
	app.UpdatedAt = s.now()
	return copyApplication(app), nil
}

func (s *Store) dueReminders(limit int, when func(*db.Application) *time.Time, stamped func(*db.Application) bool, from, to time.Time) []*db.Application {
	out := make([]*db.Application, 0)
	for _, app := range s.apps {
		t := when(app)
		if t == nil || stamped(app) || t.Before(from) || t.After(to) {
			continue
		}
		out = append(out, copyApplication(app))
	}
	sort.Slice(out, func(i, j int) bool {
		return when(out[i]).Before(*when(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) DueInterviewReminders(ctx context.Context, from, to time.Time, limit int) ([]*db.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dueReminders(limit,
		func(a *db.Application) *time.Time { return a.InterviewDate },
		func(a *db.Application) bool { return a.InterviewRemindedAt != nil },
		from, to), nil
}

func (s *Store) DueDeadlineReminders(ctx context.Context, from, to time.Time, limit int) ([]*db.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.dueReminders(limit,
		func(a *db.Application) *time.Time { return a.Deadline },
		func(a *db.Application) bool { return a.DeadlineRemindedAt != nil },
		from, to), nil
}

func (s *Store) MarkInterviewReminded(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app, ok := s.apps[id]; ok {
		now := s.now()
		app.InterviewRemindedAt = &now
	}
	return nil
}

func (s *Store) MarkDeadlineReminded(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if app, ok := s.apps[id]; ok {
		now := s.now()
		app.DeadlineRemindedAt = &now
	}
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, notif *db.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notif.ID == uuid.Nil {
		notif.ID = uuid.New()
	}
	if _, exists := s.notifs[notif.ID]; exists {
		return fmt.Errorf("notification %s already exists", notif.ID)
	}
	if notif.Metadata == nil {
		notif.Metadata = map[string]any{}
	}
	notif.EmailSent = false
	notif.ReadAt = nil
	notif.CreatedAt = s.now()

	s.seq++
	s.notifs[notif.ID] = &storedNotification{Notification: *copyNotification(notif), seq: s.seq}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id uuid.UUID, userID int64) (*db.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifs[id]
	if !ok || n.UserID != userID {
		return nil, notifNotFound(id)
	}
	return copyNotification(&n.Notification), nil
}

// ListNotifications returns a user's notifications newest first. A
// non-positive limit returns every match.
func (s *Store) ListNotifications(ctx context.Context, userID int64, opts db.ListOptions) ([]*db.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*storedNotification, 0)
	for _, n := range s.notifs {
		if n.UserID != userID || (opts.UnreadOnly && n.ReadAt != nil) {
			continue
		}
		matches = append(matches, n)
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].seq > matches[j].seq
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(matches) {
			matches = nil
		} else {
			matches = matches[opts.Offset:]
		}
	}
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}

	out := make([]*db.Notification, 0, len(matches))
	for _, n := range matches {
		out = append(out, copyNotification(&n.Notification))
	}
	return out, nil
}

func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifs {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

// MarkRead sets read_at once. Later calls leave it unchanged.
func (s *Store) MarkRead(ctx context.Context, id uuid.UUID, userID int64) (*db.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifs[id]
	if !ok || n.UserID != userID {
		return nil, notifNotFound(id)
	}
	if n.ReadAt == nil {
		now := s.now()
		n.ReadAt = &now
	}
	return copyNotification(&n.Notification), nil
}

func (s *Store) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var changed int64
	for _, n := range s.notifs {
		if n.UserID == userID && n.ReadAt == nil {
			t := now
			n.ReadAt = &t
			changed++
		}
	}
	return changed, nil
}

func (s *Store) DeleteNotification(ctx context.Context, id uuid.UUID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifs[id]
	if !ok || n.UserID != userID {
		return notifNotFound(id)
	}
	delete(s.notifs, id)
	return nil
}

func (s *Store) MarkEmailSent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifs[id]
	if !ok {
		return notifNotFound(id)
	}
	n.EmailSent = true
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*db.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, db.ErrNotFound)
	}
	c := *u
	return &c, nil
}

// Health always succeeds.
func (s *Store) Health(ctx context.Context) error {
	return nil
}
