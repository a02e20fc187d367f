package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error independently of the transport that surfaces it.
type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindValidation       Kind = "validation"
	KindThrottled        Kind = "throttled"
	KindPayloadTooLarge  Kind = "payload_too_large"
	KindUpstreamDNS      Kind = "upstream_dns_error"
	KindStorageGone      Kind = "storage_unavailable"
	KindInternal         Kind = "internal"
)

// Error is the canonical error type crossing service boundaries.
type Error struct {
	Kind   Kind
	Detail string
	// Fields mirrors the request shape for validation errors: either a flat
	// field → messages map, or indexed per bulk item via Items.
	Fields FieldErrors
	Items  []FieldErrors
	// RetryAfter is set for throttled errors, in whole seconds.
	RetryAfter int
	err        error
}

// FieldErrors maps a field name to the messages reported for it. The key
// "" (empty) collects non-field errors.
type FieldErrors map[string][]string

func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

func (f FieldErrors) Empty() bool { return len(f) == 0 }

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.err }

// E builds a plain error of the given kind.
func E(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Ef builds an error of the given kind with a formatted detail.
func Ef(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and detail to an underlying error.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, err: err}
}

// ValidationError builds a field-level validation error.
func ValidationError(fields FieldErrors) *Error {
	return &Error{Kind: KindValidation, Detail: "validation failed", Fields: fields}
}

// BulkValidationError builds a per-item validation error for bulk requests.
// The items slice is positional; empty maps mark items that passed.
func BulkValidationError(items []FieldErrors) *Error {
	return &Error{Kind: KindValidation, Detail: "validation failed", Items: items}
}

// KindOf extracts the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool { return KindOf(err) == kind }
