package domain

import (
	"context"
	"errors"
	"fmt"
)

// Category sentinels shared across subsystems.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrForbidden    = fmt.Errorf("forbidden: insufficient permissions")
	ErrCanceled     = fmt.Errorf("canceled by caller")
)

// Agent runtime sentinels.
var (
	ErrInvalidConfig  = fmt.Errorf("invalid agent config")
	ErrUnknownAction  = fmt.Errorf("unknown action")
	ErrBackendFailure = fmt.Errorf("backend failure")
	ErrAgentNotFound  = fmt.Errorf("agent: %w", ErrNotFound)
	ErrAgentDuplicate = fmt.Errorf("agent: %w", ErrDuplicate)
	ErrUnknownKind    = fmt.Errorf("unknown agent kind: %w", ErrInvalidConfig)

	// Backend classification. Both wrap ErrBackendFailure so callers that only
	// care about "the backend failed" can match the parent.
	ErrRateLimit   = fmt.Errorf("rate limit exceeded: %w", ErrBackendFailure)
	ErrAuthBackend = fmt.Errorf("backend authentication failed: %w", ErrBackendFailure)

	ErrConfigLoad  = fmt.Errorf("failed to load configuration")
	ErrAuthInvalid = fmt.Errorf("authentication failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Agent.ExecuteAction")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// BackendError marks err as a backend failure unless it already is one.
func BackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendFailure) {
		return WrapOp(op, err)
	}
	return &DomainError{Op: op, Err: ErrBackendFailure, Detail: err.Error()}
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category.
type ErrorCode string

const (
	CodeUnknown        ErrorCode = "UNKNOWN"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeDuplicate      ErrorCode = "DUPLICATE"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodeInvalidInput   ErrorCode = "INVALID_INPUT"
	CodeForbidden      ErrorCode = "FORBIDDEN"
	CodeInvalidConfig  ErrorCode = "INVALID_CONFIG"
	CodeUnknownAction  ErrorCode = "UNKNOWN_ACTION"
	CodeBackendFailure ErrorCode = "BACKEND_FAILURE"
	CodeAgentNotFound  ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate ErrorCode = "AGENT_DUPLICATE"
	CodeRateLimit      ErrorCode = "RATE_LIMIT"
	CodeAuthBackend    ErrorCode = "BACKEND_AUTH"
	CodeAuthInvalid    ErrorCode = "AUTH_INVALID"
	CodeConfigLoad     ErrorCode = "CONFIG_LOAD"
	CodeCanceled       ErrorCode = "CANCELED"
)

// codeOrder lists sentinels from most to least specific; the first match wins.
var codeOrder = []struct {
	err  error
	code ErrorCode
}{
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrAgentDuplicate, CodeAgentDuplicate},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthBackend, CodeAuthBackend},
	{ErrBackendFailure, CodeBackendFailure},
	{ErrUnknownAction, CodeUnknownAction},
	{ErrInvalidConfig, CodeInvalidConfig},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrForbidden, CodeForbidden},
	{ErrTimeout, CodeTimeout},
	{context.DeadlineExceeded, CodeTimeout},
	{ErrCanceled, CodeCanceled},
	{context.Canceled, CodeCanceled},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, c := range codeOrder {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
