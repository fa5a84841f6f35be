// Package errors provides structured error types for eventload.
// All errors include a category, code and message so the CLI can decide how
// to report them and which exit status to use.
package errors

import (
	"errors"
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategorySource     ErrorCategory = "SOURCE"
	ErrCategoryParse      ErrorCategory = "PARSE"
	ErrCategoryStore      ErrorCategory = "STORE"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidLocator = "INVALID_LOCATOR"
	CodeInvalidConfig  = "INVALID_CONFIG"

	// Source codes
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeObjectNotFound   = "OBJECT_NOT_FOUND"
	CodeInvalidSource    = "INVALID_SOURCE"
	CodeDownloadFailed   = "DOWNLOAD_FAILED"

	// Parse codes
	CodeParseError    = "PARSE_ERROR"
	CodeMissingColumn = "MISSING_COLUMN"

	// Store codes
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeAlreadyIngested  = "ALREADY_INGESTED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Exit statuses reported by the CLI per category.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitSource     = 3
	ExitParse      = 4
	ExitStore      = 5
)

// EventloadError is the structured error type used throughout the system.
type EventloadError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *EventloadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Format implements fmt.Formatter. %+v includes the cause's stack trace.
func (e *EventloadError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "[%s:%s] %s", e.Category, e.Code, e.Message)
			for k, v := range e.Details {
				fmt.Fprintf(s, "\n  %s=%v", k, v)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, "\ncaused by: %+v", e.Cause)
			}
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *EventloadError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *EventloadError) Is(target error) bool {
	var t *EventloadError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new EventloadError.
func New(category ErrorCategory, code, message string) *EventloadError {
	return &EventloadError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new EventloadError wrapping an existing error. A cause
// without a stack trace gets one recorded at this call site.
func Wrap(category ErrorCategory, code, message string, cause error) *EventloadError {
	return &EventloadError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    withStack(cause),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *EventloadError) WithDetails(details map[string]interface{}) *EventloadError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not an EventloadError.
func GetCategory(err error) ErrorCategory {
	var ee *EventloadError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an EventloadError.
func GetCode(err error) string {
	var ee *EventloadError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// IsAlreadyIngested reports whether err signals an ingestion that had already
// been recorded. It is a success outcome, not a failure.
func IsAlreadyIngested(err error) bool {
	return GetCode(err) == CodeAlreadyIngested
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil || IsAlreadyIngested(err) {
		return ExitOK
	}
	switch GetCategory(err) {
	case ErrCategoryValidation:
		return ExitValidation
	case ErrCategorySource:
		return ExitSource
	case ErrCategoryParse:
		return ExitParse
	case ErrCategoryStore:
		return ExitStore
	default:
		return ExitFailure
	}
}

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

func withStack(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if errors.As(err, &st) {
		return err
	}
	return pkgerrors.WithStack(err)
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *EventloadError {
	return New(ErrCategoryValidation, code, message)
}

func NewSourceError(code, message string, cause error) *EventloadError {
	return Wrap(ErrCategorySource, code, message, cause)
}

func NewParseError(code, message string, cause error) *EventloadError {
	return Wrap(ErrCategoryParse, code, message, cause)
}

func NewStoreError(code, message string, cause error) *EventloadError {
	return Wrap(ErrCategoryStore, code, message, cause)
}

func NewInternalError(message string, cause error) *EventloadError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// ErrAlreadyIngested is matched with errors.Is against any already-ingested error.
var ErrAlreadyIngested = New(ErrCategoryStore, CodeAlreadyIngested, "source file already ingested")
