// Package events carries domain events from the application service to
// the notification dispatcher, either in-process or through AWS queues.
package events

import (
	"context"
	"time"

	"github.com/lalithlochan/applytrack/internal/db"
)

// Kind identifies a domain event.
type Kind string

const (
	KindStatusChanged      Kind = "status_changed"
	KindApplicationCreated Kind = "application_created"
	KindInterviewScheduled Kind = "interview_scheduled"
)

// Event is raised after a successful write. Application is the row as
// stored after that write.
type Event struct {
	Kind        Kind           `json:"kind"`
	Application db.Application `json:"application"`
	OldStatus   db.Status      `json:"old_status,omitempty"`
	NewStatus   db.Status      `json:"new_status,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// StatusChanged builds the event for a completed transition.
func StatusChanged(app db.Application, oldStatus db.Status) Event {
	return Event{
		Kind:        KindStatusChanged,
		Application: app,
		OldStatus:   oldStatus,
		NewStatus:   app.Status,
		OccurredAt:  time.Now().UTC(),
	}
}

// ApplicationCreated builds the event for a newly stored application.
func ApplicationCreated(app db.Application) Event {
	return Event{
		Kind:        KindApplicationCreated,
		Application: app,
		NewStatus:   app.Status,
		OccurredAt:  time.Now().UTC(),
	}
}

// InterviewScheduled builds the event for a new interview date.
func InterviewScheduled(app db.Application) Event {
	return Event{
		Kind:        KindInterviewScheduled,
		Application: app,
		OccurredAt:  time.Now().UTC(),
	}
}

// Publisher hands an event off. Publish must not wait for the event to be
// handled.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Handler consumes events.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
