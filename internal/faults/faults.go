// Package faults defines the failure kinds shared by the archive, corpus, llm and
// pipeline packages.
package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. A Kind is itself an error so callers can write
// errors.Is(err, faults.EmptyCorpus).
type Kind string

// Failure kinds surfaced by the checker core.
const (
	UnsupportedFormat    Kind = "unsupported format"
	ArchiveNotFound      Kind = "archive not found"
	ExtractionFailed     Kind = "extraction failed"
	DirectoryNotFound    Kind = "directory not found"
	EncodingUndetected   Kind = "encoding undetected"
	EmptyCorpus          Kind = "empty corpus"
	AIRequestFailed      Kind = "AI request failed"
	DirectoryPurgeFailed Kind = "directory purge failed"
	Timeout              Kind = "timeout"
)

func (k Kind) Error() string {
	return string(k)
}

// Error is a classified failure. Path is the file or directory involved, if any.
type Error struct {
	Kind    Kind
	Op      string
	Path    string
	Message string
	Cause   error
}

// New builds an Error without a cause.
func New(kind Kind, op, path, message string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Message: message}
}

// Wrap builds an Error that keeps cause reachable through errors.Unwrap.
func Wrap(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Cause: cause}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}
