package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lalithlochan/applytrack/internal/db"
)

// ErrUnknownApplication is returned when a move names a card the board
// does not hold.
var ErrUnknownApplication = errors.New("application is not on the board")

// Transitioner performs the server-side status change.
type Transitioner interface {
	Transition(ctx context.Context, id int64, status db.Status, idempotencyKey string) (*db.Application, error)
}

// Snapshot is an immutable, ordered view of the board. Methods return
// copies, so a Snapshot can be held across moves.
type Snapshot struct {
	apps []db.Application
}

func newSnapshot(apps []db.Application) Snapshot {
	return Snapshot{apps: append([]db.Application(nil), apps...)}
}

func (s Snapshot) Applications() []db.Application {
	return append([]db.Application(nil), s.apps...)
}

func (s Snapshot) Len() int { return len(s.apps) }

func (s Snapshot) Get(id int64) (db.Application, bool) {
	for _, app := range s.apps {
		if app.ID == id {
			return app, true
		}
	}
	return db.Application{}, false
}

// Column returns the applications in status, in board order.
func (s Snapshot) Column(status db.Status) []db.Application {
	var out []db.Application
	for _, app := range s.apps {
		if app.Status == status {
			out = append(out, app)
		}
	}
	return out
}

// replace returns a new snapshot with the application at id swapped for
// app, keeping its position.
func (s Snapshot) replace(app db.Application) (Snapshot, bool) {
	for i := range s.apps {
		if s.apps[i].ID == app.ID {
			next := newSnapshot(s.apps)
			next.apps[i] = app
			return next, true
		}
	}
	return s, false
}

// Pending is an applied but unconfirmed move.
type Pending struct {
	ID     int64
	From   db.Status
	To     db.Status
	before Snapshot
}

type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota
	NoticeError
)

// Notice is a transient message for the UI.
type Notice struct {
	Kind          NoticeKind
	ApplicationID int64
	Status        db.Status
	Message       string
	Err           error
	TTL           time.Duration
}

// NoticeTTL is how long a notice should stay visible.
const NoticeTTL = 3 * time.Second

// Board holds the caller's applications and moves them optimistically.
// Moves run one at a time in arrival order; a move waiting in the queue
// starts from the state the previous move left behind.
type Board struct {
	api      Transitioner
	onNotice func(Notice)

	mu      sync.Mutex
	state   Snapshot
	busy    bool
	waiting []chan struct{}
}

// NewBoard creates a board holding apps. onNotice may be nil.
func NewBoard(api Transitioner, apps []db.Application, onNotice func(Notice)) *Board {
	if onNotice == nil {
		onNotice = func(Notice) {}
	}
	return &Board{
		api:      api,
		onNotice: onNotice,
		state:    newSnapshot(apps),
	}
}

// Snapshot returns the current state, including unconfirmed moves.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Apply moves the card locally and returns the pending move.
func (b *Board) Apply(id int64, status db.Status) (*Pending, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	app, ok := b.state.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownApplication, id)
	}

	p := &Pending{ID: id, From: app.Status, To: status, before: b.state}
	app.Status = status
	b.state, _ = b.state.replace(app)
	return p, nil
}

// Commit keeps the optimistic state. A non-nil server copy replaces the
// local card.
func (b *Board) Commit(p *Pending, server *db.Application) {
	if server == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state, _ = b.state.replace(*server)
}

// Rollback restores the board exactly as it was before Apply.
func (b *Board) Rollback(p *Pending) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = p.before
}

// Move applies the change, calls the server and then commits or rolls
// back. It waits for earlier moves to finish first.
func (b *Board) Move(ctx context.Context, id int64, status db.Status) (*db.Application, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	p, err := b.Apply(id, status)
	if err != nil {
		b.onNotice(Notice{Kind: NoticeError, ApplicationID: id, Status: status, Message: "Application not found", Err: err, TTL: NoticeTTL})
		return nil, err
	}

	app, err := b.api.Transition(ctx, id, status, "")
	if err != nil {
		b.Rollback(p)
		b.onNotice(Notice{Kind: NoticeError, ApplicationID: id, Status: status, Message: failureMessage(err), Err: err, TTL: NoticeTTL})
		return nil, err
	}

	b.Commit(p, app)
	b.onNotice(Notice{Kind: NoticeSuccess, ApplicationID: id, Status: status, Message: fmt.Sprintf("Moved to %s", status), TTL: NoticeTTL})
	return app, nil
}

// Reload replaces the board with the server's list once no move is in
// flight.
func (b *Board) Reload(ctx context.Context, list func(context.Context) ([]db.Application, error)) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	apps, err := list(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.state = newSnapshot(apps)
	b.mu.Unlock()
	return nil
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "You can only move your own applications"
	case errors.Is(err, ErrNotFound):
		return "Application no longer exists"
	case errors.Is(err, ErrInvalidStatus):
		return "That status is not allowed"
	default:
		return "Failed to update application status"
	}
}

func (b *Board) acquire(ctx context.Context) error {
	b.mu.Lock()
	if !b.busy {
		b.busy = true
		b.mu.Unlock()
		return nil
	}
	turn := make(chan struct{})
	b.waiting = append(b.waiting, turn)
	b.mu.Unlock()

	select {
	case <-turn:
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		for i, w := range b.waiting {
			if w == turn {
				b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
				b.mu.Unlock()
				return ctx.Err()
			}
		}
		b.mu.Unlock()
		// The turn was handed over while ctx was being cancelled.
		b.release()
		return ctx.Err()
	}
}

func (b *Board) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.waiting) == 0 {
		b.busy = false
		return
	}
	next := b.waiting[0]
	b.waiting = b.waiting[1:]
	close(next)
}
