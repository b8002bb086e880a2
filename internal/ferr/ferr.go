// Package ferr defines the closed set of error kinds that fdb subsystems
// report, per spec §7, plus the context a caller needs to act on them
// (database key, file path, record offset, peer endpoint).
package ferr

import (
	"errors"
	"fmt"
)

// Kind enumerates the named failure categories of the system.
type Kind string

const (
	SchemaError         Kind = "SchemaError"
	CatalogueCorrupt    Kind = "CatalogueCorrupt"
	IndexMissing        Kind = "IndexMissing"
	StoreIOError        Kind = "StoreIOError"
	DistributionError   Kind = "DistributionError"
	LockConflict        Kind = "LockConflict"
	NotFound            Kind = "NotFound"
	UserError           Kind = "UserError"
	RemoteProtocolError Kind = "RemoteProtocolError"
)

// Error is the error type produced throughout fdb. It carries a Kind for
// programmatic dispatch (errors.As), optional structured context, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	for k, v := range e.Context {
		msg += fmt.Sprintf(" [%s=%s]", k, v)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ferr.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an *Error with no cause and no context.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// With attaches structured context and returns the receiver for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Of reports whether err is (or wraps) an *Error of the given Kind.
func Of(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
