package rendering

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
	"time"
)

// Kind distinguishes a graded report from a conversational reply
type Kind string

// Document kinds
const (
	KindReport   Kind = "report"
	KindResponse Kind = "response"
)

// Output formats
const (
	FormatMarkdown = "markdown"
	FormatText     = "text"
)

// Document is the data passed to a report or response template
type Document struct {
	Kind  Kind
	RunID string
	// Source is the submission file name
	Source      string
	Model       string
	GeneratedAt time.Time
	// Body is the AI output, inserted verbatim
	Body string
}

const reportMarkdown = `# Homework review: {{escape .Source}}

- **Run:** {{.RunID}}
- **Model:** {{escape .Model}}
- **Generated:** {{timestamp .GeneratedAt}}

---

{{.Body}}
`

const reportText = `HOMEWORK REVIEW
Submission: {{.Source}}
Run:        {{.RunID}}
Model:      {{.Model}}
Generated:  {{timestamp .GeneratedAt}}

{{.Body}}
`

const responseMarkdown = `**Reply**

{{.Body}}
`

const responseText = `{{.Body}}
`

type templateKey struct {
	kind   Kind
	format string
}

// Renderer executes one template per (kind, format) pair
type Renderer struct {
	templates map[templateKey]*template.Template
}

// NewRenderer creates a Renderer with the built-in markdown and text templates
func NewRenderer() *Renderer {
	r := &Renderer{templates: make(map[templateKey]*template.Template)}
	builtins := map[templateKey]string{
		{KindReport, FormatMarkdown}:   reportMarkdown,
		{KindReport, FormatText}:       reportText,
		{KindResponse, FormatMarkdown}: responseMarkdown,
		{KindResponse, FormatText}:     responseText,
	}
	for key, text := range builtins {
		r.templates[key] = template.Must(newTemplate(key).Parse(text))
	}
	return r
}

func newTemplate(key templateKey) *template.Template {
	return template.New(string(key.kind) + "." + key.format).Funcs(template.FuncMap{
		"escape":    EscapeMarkdown,
		"timestamp": formatTimestamp,
	})
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// Formats lists the formats available for kind in sorted order
func (r *Renderer) Formats(kind Kind) []string {
	var formats []string
	for key := range r.templates {
		if key.kind == kind {
			formats = append(formats, key.format)
		}
	}
	sort.Strings(formats)
	return formats
}

// LoadTemplate replaces (or adds) the template for kind and format with the
// contents of templatePath
func (r *Renderer) LoadTemplate(kind Kind, format, templatePath string) error {
	key := templateKey{kind: kind, format: strings.ToLower(format)}
	content, err := os.ReadFile(templatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &TemplateError{
				Kind:    key.kind,
				Format:  key.format,
				Message: fmt.Sprintf("template file not found: %s", templatePath),
				Cause:   err,
			}
		}
		return &TemplateError{
			Kind:    key.kind,
			Format:  key.format,
			Message: fmt.Sprintf("failed to read template file: %s", templatePath),
			Cause:   err,
		}
	}

	tmpl, err := newTemplate(key).Parse(string(content))
	if err != nil {
		return &TemplateError{
			Kind:    key.kind,
			Format:  key.format,
			Message: "failed to parse template",
			Cause:   err,
		}
	}

	r.templates[key] = tmpl
	return nil
}

// Render executes the template registered for doc.Kind and format
func (r *Renderer) Render(doc Document, format string) (string, error) {
	key := templateKey{kind: doc.Kind, format: strings.ToLower(format)}
	tmpl, ok := r.templates[key]
	if !ok {
		return "", &RenderError{
			Kind:      doc.Kind,
			Format:    format,
			Available: r.Formats(doc.Kind),
		}
	}

	var result strings.Builder
	if err := tmpl.Execute(&result, doc); err != nil {
		return "", &TemplateError{
			Kind:    key.kind,
			Format:  key.format,
			Message: "failed to execute template",
			Cause:   err,
		}
	}

	return result.String(), nil
}
