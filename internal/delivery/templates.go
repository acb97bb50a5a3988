package delivery

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	textTemplate "text/template"
)

// Template selects the email layout used for a notification.
type Template uint8

const (
	// TemplateNone means the notification is in-app only.
	TemplateNone Template = iota
	TemplateStatusUpdate
	TemplateInterview
	TemplateReminder
	TemplateGeneric

	numTemplates
)

var templateNames = [...]string{
	TemplateNone:         "none",
	TemplateStatusUpdate: "status_update",
	TemplateInterview:    "interview",
	TemplateReminder:     "reminder",
	TemplateGeneric:      "generic",
}

var _ = [1]struct{}{}[len(templateNames)-int(numTemplates)]

func (t Template) String() string {
	if int(t) < len(templateNames) {
		return templateNames[t]
	}
	return fmt.Sprintf("Template(%d)", t)
}

// Data is what every email template can reference.
type Data struct {
	AppName       string
	RecipientName string
	Title         string
	Message       string
	ActionURL     string
	Details       map[string]string
}

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

type compiled struct {
	html *template.Template
	text *textTemplate.Template
}

var compiledTemplates = mustCompile()

func mustCompile() map[Template]compiled {
	out := make(map[Template]compiled, numTemplates)
	for t := TemplateStatusUpdate; t < numTemplates; t++ {
		name := templateNames[t]
		h := template.Must(template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
		x := textTemplate.Must(textTemplate.ParseFS(templateFS, "templates/"+name+".txt"))
		out[t] = compiled{html: h, text: x}
	}
	return out
}

// Compose renders the HTML and plain-text bodies of an email.
func Compose(t Template, data Data) (htmlBody, textBody string, err error) {
	c, ok := compiledTemplates[t]
	if !ok {
		return "", "", fmt.Errorf("no email template %s", t)
	}
	if data.AppName == "" {
		data.AppName = "ApplyTrack"
	}

	var hb bytes.Buffer
	if err := c.html.ExecuteTemplate(&hb, "layout", data); err != nil {
		return "", "", fmt.Errorf("render %s html: %w", t, err)
	}

	var tb bytes.Buffer
	if err := c.text.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("render %s text: %w", t, err)
	}

	return hb.String(), strings.TrimSpace(tb.String()), nil
}
