package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when a row does not exist
// (or is not visible to the requesting user).
var ErrNotFound = errors.New("not found")

// Status is an application's position in the hiring pipeline.
type Status string

// Status constants. Any status may move to any other status.
const (
	StatusApplied       Status = "Applied"
	StatusInterview     Status = "Interview"
	StatusTechnicalTest Status = "Technical Test"
	StatusOffer         Status = "Offer"
	StatusRejected      Status = "Rejected"
)

// Statuses returns the closed set of pipeline statuses in board order.
func Statuses() []Status {
	return []Status{StatusApplied, StatusInterview, StatusTechnicalTest, StatusOffer, StatusRejected}
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusApplied, StatusInterview, StatusTechnicalTest, StatusOffer, StatusRejected:
		return true
	}
	return false
}

// Application represents one tracked job application
type Application struct {
	ID                  int64      `json:"id"`
	UserID              int64      `json:"user_id"`
	Company             string     `json:"company"`
	Position            string     `json:"position"`
	Status              Status     `json:"status"`
	InterviewDate       *time.Time `json:"interview_date,omitempty"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	InterviewRemindedAt *time.Time `json:"-"`
	DeadlineRemindedAt  *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// User is the subset of the user profile the notification path needs.
type User struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	EmailNotifications bool   `json:"email_notifications"`
}

// NotificationType selects both the in-app message template and the
// email template of a notification.
type NotificationType uint8

const (
	TypeApplicationStatusChanged NotificationType = iota
	TypeApplicationCreated
	TypeInterviewScheduled
	TypeInterviewReminder
	TypeDocumentUploaded
	TypeDeadlineApproaching
	TypeFollowUpReminder
	TypeJobPostingNew
	TypeGeneral
	TypeSystem

	// NumNotificationTypes must stay last.
	NumNotificationTypes
)

var typeNames = [...]string{
	TypeApplicationStatusChanged: "application_status_changed",
	TypeApplicationCreated:       "application_created",
	TypeInterviewScheduled:       "interview_scheduled",
	TypeInterviewReminder:        "interview_reminder",
	TypeDocumentUploaded:         "document_uploaded",
	TypeDeadlineApproaching:      "application_deadline_approaching",
	TypeFollowUpReminder:         "follow_up_reminder",
	TypeJobPostingNew:            "job_posting_new",
	TypeGeneral:                  "general",
	TypeSystem:                   "system",
}

// Fails to compile when a type is added without a wire name.
var _ = [1]struct{}{}[len(typeNames)-int(NumNotificationTypes)]

func (t NotificationType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("NotificationType(%d)", t)
}

// ParseNotificationType maps a wire name back to its type.
func ParseNotificationType(s string) (NotificationType, error) {
	for i, name := range typeNames {
		if name == s {
			return NotificationType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown notification type: %q", s)
}

func (t NotificationType) MarshalText() ([]byte, error) {
	if int(t) >= len(typeNames) {
		return nil, fmt.Errorf("invalid notification type %d", t)
	}
	return []byte(typeNames[t]), nil
}

func (t *NotificationType) UnmarshalText(b []byte) error {
	parsed, err := ParseNotificationType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// EntityRef is a weak reference to the object that caused a notification.
// The referenced row may be deleted later.
type EntityRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// Related entity kinds
const (
	EntityApplication = "application"
	EntityDocument    = "document"
	EntityJobPosting  = "job_posting"
)

// Notification is one fact surfaced to a user. Only ReadAt and EmailSent
// change after creation.
type Notification struct {
	ID            uuid.UUID        `json:"id"`
	UserID        int64            `json:"user_id"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
	RelatedEntity *EntityRef       `json:"related_entity,omitempty"`
	ActionURL     *string          `json:"action_url,omitempty"`
	ReadAt        *time.Time       `json:"read_at"`
	EmailSent     bool             `json:"email_sent"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ListOptions controls ListNotifications paging and filtering.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}
