// Package snaperr defines the error kinds surfaced by discovery and snapshot
// operations. Filesystem errors are translated into one of these kinds at the
// operation boundary so callers never have to inspect raw *fs.PathError values.
package snaperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindIO               Kind = "io"
	KindNotFound         Kind = "not_found"
	KindDocumentsMissing Kind = "documents_missing"
	KindCopyFailed       Kind = "copy_failed"
	KindValidationFailed Kind = "validation_failed"
	KindRestoreFailed    Kind = "restore_failed"
	KindPathsInvalid     Kind = "paths_invalid"
	KindBusy             Kind = "busy"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrIO               = &Error{Kind: KindIO}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrDocumentsMissing = &Error{Kind: KindDocumentsMissing}
	ErrCopyFailed       = &Error{Kind: KindCopyFailed}
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
	ErrRestoreFailed    = &Error{Kind: KindRestoreFailed}
	ErrPathsInvalid     = &Error{Kind: KindPathsInvalid}
	ErrBusy             = &Error{Kind: KindBusy}
)

// Error is a classified operation failure.
type Error struct {
	Kind Kind
	Op   string // e.g. "take snapshot"
	Path string // offending path, if any
	Hint string // user-facing remediation
	Err  error
}

// New returns an *Error of the given kind.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// WithHint sets a user-facing hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func (e *Error) Error() string {
	msg := describe(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HintOf returns the first non-empty hint in err's chain.
func HintOf(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Hint != "" {
			return e.Hint
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// Message renders err for a transient user-visible banner.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if hint := HintOf(err); hint != "" {
		return err.Error() + ". " + hint
	}
	return err.Error()
}

func describe(k Kind) string {
	switch k {
	case KindIO:
		return "i/o error"
	case KindNotFound:
		return "not found"
	case KindDocumentsMissing:
		return "documents directory is missing"
	case KindCopyFailed:
		return "copy failed"
	case KindValidationFailed:
		return "validation failed"
	case KindRestoreFailed:
		return "restore failed"
	case KindPathsInvalid:
		return "application paths are no longer valid"
	case KindBusy:
		return "another snapshot operation is in progress"
	default:
		return "error"
	}
}
