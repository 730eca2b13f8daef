// Package errors provides a lightweight structured error type (GundeckError)
// for category-based classification in HTTP adapters and the CLI.
package errors

import (
	"fmt"
)

// ErrorCategory classifies a GundeckError for presentation and status mapping.
type ErrorCategory string

const (
	// User-facing input errors
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryConflict   ErrorCategory = "conflict"

	// Settings-file structure errors (container marker missing etc.)
	CategoryStructure ErrorCategory = "structure"

	// External system errors
	CategoryRemote  ErrorCategory = "remote"
	CategoryTimeout ErrorCategory = "timeout"
	CategoryService ErrorCategory = "service"

	// Infrastructure errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryConfig     ErrorCategory = "config"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"
	SeverityError   ErrorSeverity = "error"
	SeverityWarning ErrorSeverity = "warning"
)

// ContextFields carries structured context for GundeckError.
type ContextFields map[string]any

// GundeckError is a structured error with category, severity, and context.
type GundeckError struct {
	Category ErrorCategory `json:"category"`
	Severity ErrorSeverity `json:"severity"`
	Message  string        `json:"message"`
	Cause    error         `json:"cause,omitempty"`
	Context  ContextFields `json:"context,omitempty"`
}

// Error implements the error interface.
func (e *GundeckError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap supports errors.Is/As chains.
func (e *GundeckError) Unwrap() error {
	return e.Cause
}

// WithContext adds a context field to the error.
func (e *GundeckError) WithContext(key string, value any) *GundeckError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new GundeckError.
func New(category ErrorCategory, severity ErrorSeverity, message string) *GundeckError {
	return &GundeckError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new GundeckError that wraps an existing error.
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *GundeckError {
	return &GundeckError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory checks if an error belongs to a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	if ge, ok := err.(*GundeckError); ok {
		return ge.Category == category
	}
	return false
}

// GetCategory extracts the category from an error, or CategoryInternal if the
// error is not a GundeckError.
func GetCategory(err error) ErrorCategory {
	if ge, ok := err.(*GundeckError); ok {
		return ge.Category
	}
	return CategoryInternal
}
