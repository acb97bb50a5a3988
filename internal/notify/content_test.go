package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/lalithlochan/applytrack/internal/db"
)

func TestRender_MissingFieldsUsePlaceholder(t *testing.T) {
	empty := db.Application{ID: 5, UserID: 7}

	tests := []struct {
		name string
		c    content
	}{
		{"status changed", renderStatusChanged(empty, "")},
		{"created", renderApplicationCreated(empty)},
		{"interview scheduled", renderInterviewScheduled(empty)},
		{"interview reminder", renderInterviewReminder(empty)},
		{"deadline", renderDeadlineApproaching(empty)},
		{"follow up", renderFollowUpReminder(empty, 0)},
		{"document", renderDocumentUploaded(Document{})},
		{"job posting", renderJobPostingNew(JobPosting{})},
		{"freeform", renderFreeform("", "", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.c.title+tt.c.message, Placeholder) {
				t.Errorf("expected %q in %q / %q", Placeholder, tt.c.title, tt.c.message)
			}
		})
	}
}

func TestRenderStatusChanged(t *testing.T) {
	app := db.Application{ID: 1, UserID: 7, Company: "Acme", Position: "Backend Engineer", Status: db.StatusOffer}

	c := renderStatusChanged(app, db.StatusInterview)

	want := "Your application for Backend Engineer at Acme has been updated from Interview to Offer."
	if c.message != want {
		t.Errorf("message = %q, want %q", c.message, want)
	}
	if c.metadata["application_id"] != int64(1) {
		t.Errorf("unexpected application_id %v", c.metadata["application_id"])
	}
}

func TestRenderInterviewScheduled_FormatsDate(t *testing.T) {
	when := time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC)
	app := db.Application{Company: "Acme", Position: "SRE", InterviewDate: &when}

	c := renderInterviewScheduled(app)

	if !strings.Contains(c.message, "March 3, 2026 at 2:30 PM") {
		t.Errorf("unexpected message %q", c.message)
	}
	if c.details["interview_date"] != "March 3, 2026 at 2:30 PM" {
		t.Errorf("unexpected details %v", c.details)
	}
}

func TestRenderFreeform_CopiesMetadata(t *testing.T) {
	md := map[string]any{"k": "v"}
	c := renderFreeform("t", "m", md)
	md["k"] = "changed"

	if c.metadata["k"] != "v" {
		t.Error("metadata must not alias the caller's map")
	}
}
