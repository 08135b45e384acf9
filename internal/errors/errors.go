// Package errors defines the structured error taxonomy shared by every
// analysis component and protocol adapter.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ParseError indicates a file could not be tokenized or parsed
	ParseError ErrorCode = "PARSE_ERROR"
	// ResourceLimit indicates a recursion, time, size or node-count bound was exceeded
	ResourceLimit ErrorCode = "RESOURCE_LIMIT"
	// Timeout indicates the request deadline elapsed
	Timeout ErrorCode = "TIMEOUT"
	// Cancelled indicates the request was cancelled by the caller
	Cancelled ErrorCode = "CANCELLED"
	// CacheIO indicates a cache read, write or rename failure
	CacheIO ErrorCode = "CACHE_IO"
	// InvalidInput indicates missing, unknown or malformed request input
	InvalidInput ErrorCode = "INVALID_INPUT"
	// NotFound indicates an unknown template, analyzer or resource
	NotFound ErrorCode = "NOT_FOUND"
	// ProtocolError indicates an invalid protocol envelope
	ProtocolError ErrorCode = "PROTOCOL_ERROR"
	// InternalError indicates an invariant violation
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// Problem is one entry of an invalid-input report.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// PmatError is the error type returned across package boundaries.
type PmatError struct {
	Code           ErrorCode      `json:"code"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	Problems       []Problem      `json:"problems,omitempty"`
	SuggestedFixes []FixAction    `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates a PmatError with the given code and message.
func New(code ErrorCode, message string, cause error) *PmatError {
	return &PmatError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *PmatError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *PmatError) Unwrap() error {
	return e.cause
}

// Is matches another PmatError by code so errors.Is works against the
// sentinel values below.
func (e *PmatError) Is(target error) bool {
	t, ok := target.(*PmatError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// WithDetail attaches one structured context value.
func (e *PmatError) WithDetail(key string, value any) *PmatError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is checks. They carry a code and no message.
var (
	ErrParse         = &PmatError{Code: ParseError}
	ErrResourceLimit = &PmatError{Code: ResourceLimit}
	ErrTimeout       = &PmatError{Code: Timeout}
	ErrCancelled     = &PmatError{Code: Cancelled}
	ErrCacheIO       = &PmatError{Code: CacheIO}
	ErrInvalidInput  = &PmatError{Code: InvalidInput}
	ErrNotFound      = &PmatError{Code: NotFound}
	ErrProtocol      = &PmatError{Code: ProtocolError}
	ErrInternal      = &PmatError{Code: InternalError}
)

// Parse reports a file that could not be parsed.
func Parse(path, message string, cause error) *PmatError {
	return New(ParseError, fmt.Sprintf("%s: %s", path, message), cause).WithDetail("path", path)
}

// Limit reports an exceeded resource bound for a single file.
func Limit(path, limit string, value, max int64) *PmatError {
	return New(ResourceLimit, fmt.Sprintf("%s: %s limit exceeded (%d > %d)", path, limit, value, max), nil).
		WithDetail("path", path).
		WithDetail("limit", limit).
		WithDetail("value", value).
		WithDetail("max", max)
}

// TimedOut reports a deadline expiry with the elapsed time.
func TimedOut(operation string, elapsed time.Duration) *PmatError {
	return New(Timeout, fmt.Sprintf("%s timed out after %s", operation, elapsed.Round(time.Millisecond)), nil).
		WithDetail("operation", operation).
		WithDetail("elapsedMs", elapsed.Milliseconds())
}

// Cache reports a cache I/O failure.
func Cache(op, path string, cause error) *PmatError {
	return New(CacheIO, fmt.Sprintf("cache %s failed for %s", op, path), cause).
		WithDetail("op", op).
		WithDetail("path", path)
}

// Invalid reports every input problem at once.
func Invalid(problems ...Problem) *PmatError {
	msgs := make([]string, 0, len(problems))
	for _, p := range problems {
		if p.Field != "" {
			msgs = append(msgs, p.Field+": "+p.Message)
		} else {
			msgs = append(msgs, p.Message)
		}
	}
	e := New(InvalidInput, "invalid input: "+strings.Join(msgs, "; "), nil)
	e.Problems = problems
	return e
}

// Missing reports an unknown named resource.
func Missing(kind, name string) *PmatError {
	return New(NotFound, fmt.Sprintf("%s not found: %s", kind, name), nil).
		WithDetail("kind", kind).
		WithDetail("name", name)
}

// Protocol reports an invalid protocol envelope.
func Protocol(message string) *PmatError {
	return New(ProtocolError, message, nil)
}

// Internal reports an invariant violation with reproduction context.
func Internal(message string, fields map[string]any) *PmatError {
	e := New(InternalError, message, nil)
	for k, v := range fields {
		e.WithDetail(k, v)
	}
	return e
}

// FromContext converts a context error into the matching taxonomy entry.
func FromContext(err error, operation string, elapsed time.Duration) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, context.DeadlineExceeded):
		return TimedOut(operation, elapsed)
	case stderrors.Is(err, context.Canceled):
		return New(Cancelled, operation+" cancelled", err)
	default:
		return err
	}
}

// CodeOf returns the code of the first PmatError in the chain, or
// InternalError for foreign errors.
func CodeOf(err error) ErrorCode {
	var pe *PmatError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return InternalError
}

// As is a convenience wrapper around errors.As for *PmatError.
func As(err error) (*PmatError, bool) {
	var pe *PmatError
	ok := stderrors.As(err, &pe)
	return pe, ok
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	InvalidInput: {
		{
			Type:        RunCommand,
			Command:     "pmat list",
			Description: "List templates and their parameters",
		},
	},
	NotFound: {
		{
			Type:        RunCommand,
			Command:     "pmat search ${query}",
			Description: "Search for a matching template",
		},
	},
	Timeout: {
		{
			Type:        RunCommand,
			Command:     "pmat ${command} --timeout 120s",
			Description: "Retry with a longer deadline",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
