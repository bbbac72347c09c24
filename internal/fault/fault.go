// Package fault defines the error taxonomy shared by the import pipeline.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an import failure.
type Kind string

const (
	KindFileSystem          Kind = "file_system"
	KindUnsupportedFileType Kind = "unsupported_file_type"
	KindArchive             Kind = "archive"
	KindDatabase            Kind = "database"
	KindConflictingOptions  Kind = "conflicting_options"
)

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind && op == "" {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// FileSystem wraps an I/O failure.
func FileSystem(op string, err error) error {
	return newError(KindFileSystem, op, err)
}

// Archive wraps a zip read/write failure or an unexpected archive layout.
func Archive(op string, err error) error {
	return newError(KindArchive, op, err)
}

// Database wraps a store failure.
func Database(op string, err error) error {
	return newError(KindDatabase, op, err)
}

// Unsupported reports an extension that is unknown or disabled by configuration.
func Unsupported(path, ext string) error {
	return &Error{Kind: KindUnsupportedFileType, Op: path, Err: fmt.Errorf("unsupported file type %q", ext)}
}

// Conflict reports an invalid combination of import options.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflictingOptions, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the outermost fault in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
