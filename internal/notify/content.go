package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/lalithlochan/applytrack/internal/db"
)

// Placeholder substitutes any missing optional field.
const Placeholder = "TBD"

const (
	interviewLayout = "January 2, 2006 at 3:04 PM"
	dateLayout      = "January 2, 2006"
)

// Document is the part of an uploaded document a notification mentions.
type Document struct {
	ID   int64
	Name string
	Kind string
}

// JobPosting is the part of a job posting a notification mentions.
type JobPosting struct {
	ID       int64
	Title    string
	Company  string
	Location string
}

// content is a rendered notification before it is stored. Renderers are
// pure and never fail.
type content struct {
	title      string
	message    string
	metadata   map[string]any
	related    *db.EntityRef
	actionPath string
	details    map[string]string
}

func orTBD(s string) string {
	if strings.TrimSpace(s) == "" {
		return Placeholder
	}
	return s
}

func formatTime(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return Placeholder
	}
	return t.Format(layout)
}

func applicationRef(app db.Application) *db.EntityRef {
	return &db.EntityRef{Type: db.EntityApplication, ID: app.ID}
}

func applicationPath(app db.Application) string {
	return fmt.Sprintf("/applications/%d", app.ID)
}

func applicationMetadata(app db.Application) map[string]any {
	return map[string]any{
		"application_id": app.ID,
		"company":        orTBD(app.Company),
		"position":       orTBD(app.Position),
	}
}

func renderStatusChanged(app db.Application, oldStatus db.Status) content {
	company, position := orTBD(app.Company), orTBD(app.Position)
	oldS, newS := orTBD(string(oldStatus)), orTBD(string(app.Status))

	md := applicationMetadata(app)
	md["old_status"] = oldS
	md["new_status"] = newS

	return content{
		title:      "Application Status Updated",
		message:    fmt.Sprintf("Your application for %s at %s has been updated from %s to %s.", position, company, oldS, newS),
		metadata:   md,
		related:    applicationRef(app),
		actionPath: applicationPath(app),
		details: map[string]string{
			"company":  company,
			"position": position,
			"status":   newS,
		},
	}
}

func renderApplicationCreated(app db.Application) content {
	company, position := orTBD(app.Company), orTBD(app.Position)

	md := applicationMetadata(app)
	md["status"] = orTBD(string(app.Status))

	return content{
		title:      "Application Submitted",
		message:    fmt.Sprintf("Your application for %s at %s has been recorded.", position, company),
		metadata:   md,
		related:    applicationRef(app),
		actionPath: applicationPath(app),
		details: map[string]string{
			"company":  company,
			"position": position,
			"status":   orTBD(string(app.Status)),
		},
	}
}

func renderInterviewScheduled(app db.Application) content {
	company, position := orTBD(app.Company), orTBD(app.Position)
	when := formatTime(app.InterviewDate, interviewLayout)

	md := applicationMetadata(app)
	md["interview_date"] = when

	return content{
		title:      "Interview Scheduled",
		message:    fmt.Sprintf("Your interview for %s at %s is scheduled for %s.", position, company, when),
		metadata:   md,
		related:    applicationRef(app),
		actionPath: applicationPath(app),
		details: map[string]string{
			"company":        company,
			"position":       position,
			"interview_date": when,
		},
	}
}

func renderInterviewReminder(app db.Application) content {
	company, position := orTBD(app.Company), orTBD(app.Position)
	when := formatTime(app.InterviewDate, interviewLayout)

	md := applicationMetadata(app)
	md["interview_date"] = when

	return content{
		title:      "Interview Reminder",
		message:    fmt.Sprintf("Reminder: your interview for %s at %s is on %s.", position, company, when),
		metadata:   md,
		related:    applicationRef(app),
		actionPath: applicationPath(app),
		details: map[string]string{
			"company":        company,
			"position":       position,
			"interview_date": when,
		},
	}
}

func renderDocumentUploaded(doc Document) content {
	name := orTBD(doc.Name)
	return content{
		title:   "Document Uploaded",
		message: fmt.Sprintf("Your document %q has been uploaded successfully.", name),
		metadata: map[string]any{
			"document_id":   doc.ID,
			"document_name": name,
			"document_type": orTBD(doc.Kind),
		},
		related:    &db.EntityRef{Type: db.EntityDocument, ID: doc.ID},
		actionPath: "/documents",
	}
}

func renderDeadlineApproaching(app db.Application) content {
	company, position := orTBD(app.Company), orTBD(app.Position)
	deadline := formatTime(app.Deadline, dateLayout)

	md := applicationMetadata(app)
	md["deadline"] = deadline

	return content{
		title:      "Application Deadline Approaching",
		message:    fmt.Sprintf("The deadline for %s at %s is %s.", position, company, deadline),
		metadata:   md,
		related:    applicationRef(app),
		actionPath: applicationPath(app),
		details: map[string]string{
			"company":  company,
			"position": position,
			"deadline": deadline,
		},
	}
}

func renderFollowUpReminder(app db.Application, days int) content {
	company, position := orTBD(app.Company), orTBD(app.Position)
	elapsed := Placeholder
	if days > 0 {
		elapsed = fmt.Sprintf("%d days", days)
	}

	md := applicationMetadata(app)
	md["days_since_applied"] = days

	return content{
		title:      "Follow-up Reminder",
		message:    fmt.Sprintf("It has been %s since you applied for %s at %s. Consider following up.", elapsed, position, company),
		metadata:   md,
		related:    applicationRef(app),
		actionPath: applicationPath(app),
		details: map[string]string{
			"company":  company,
			"position": position,
		},
	}
}

func renderJobPostingNew(posting JobPosting) content {
	title, company := orTBD(posting.Title), orTBD(posting.Company)
	return content{
		title:   "New Job Match",
		message: fmt.Sprintf("A new %s position at %s (%s) matches your profile.", title, company, orTBD(posting.Location)),
		metadata: map[string]any{
			"job_posting_id": posting.ID,
			"title":          title,
			"company":        company,
			"location":       orTBD(posting.Location),
		},
		related:    &db.EntityRef{Type: db.EntityJobPosting, ID: posting.ID},
		actionPath: fmt.Sprintf("/jobs/%d", posting.ID),
	}
}

func renderFreeform(title, message string, metadata map[string]any) content {
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return content{
		title:    orTBD(title),
		message:  orTBD(message),
		metadata: md,
	}
}
