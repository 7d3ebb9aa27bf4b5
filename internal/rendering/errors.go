// Package rendering turns AI output into the reports and replies shown to the user.
package rendering

import (
	"fmt"
	"strings"
)

// TemplateError reports a report or reply template that could not be loaded,
// parsed or executed. Kind and Format identify the template when known.
type TemplateError struct {
	Kind    Kind
	Format  string
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	msg := "template error"
	if e.Kind != "" {
		msg += fmt.Sprintf(" (%s/%s)", e.Kind, e.Format)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// RenderError reports a document that has no template for the requested format
type RenderError struct {
	Kind      Kind
	Format    string
	Available []string
}

func (e *RenderError) Error() string {
	msg := fmt.Sprintf("render error: unsupported %s format %q", e.Kind, e.Format)
	if len(e.Available) > 0 {
		msg += " (available: " + strings.Join(e.Available, ", ") + ")"
	}
	return msg
}
