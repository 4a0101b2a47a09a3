// Package errors provides structured error handling for snowlift.
//
// Every failure the migration pipeline can report is an *Error carrying an
// ErrorType from the taxonomy below. The orchestrator classifies failures with
// IsType / TypeOf and never lets them escape as unhandled faults.
package errors

import (
	"errors"
	"runtime"
	"strings"

	stringpool "github.com/ajitpratap0/snowlift/pkg/strings"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeMissingConfig is raised when required configuration keys are absent or empty
	ErrorTypeMissingConfig ErrorType = "missing_configuration"
	// ErrorTypeInvalidConfigFormat is raised when a configuration value fails a format rule
	ErrorTypeInvalidConfigFormat ErrorType = "invalid_configuration_format"
	// ErrorTypeSourceConnection represents failures to reach the operational database
	ErrorTypeSourceConnection ErrorType = "source_connection"
	// ErrorTypeTargetConnection represents failures to reach the warehouse
	ErrorTypeTargetConnection ErrorType = "target_connection"
	// ErrorTypeQuery represents query execution errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeSerialization represents failures writing the staged artifact
	ErrorTypeSerialization ErrorType = "serialization"
	// ErrorTypeLoad represents a failed PUT or COPY INTO
	ErrorTypeLoad ErrorType = "load_failed"
	// ErrorTypeTransformation represents a failed transformation subprocess
	ErrorTypeTransformation ErrorType = "transformation_failed"
	// ErrorTypeBackup represents a failed backup dump or upload
	ErrorTypeBackup ErrorType = "backup_failed"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// DetailMissingKeys is the detail key under which missing configuration keys are stored
const DetailMissingKeys = "missing_keys"

// DetailViolations is the detail key under which configuration format violations are stored
const DetailViolations = "violations"

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return stringpool.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return stringpool.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key, if any
func (e *Error) Detail(key string) (interface{}, bool) {
	if e.Details == nil {
		return nil, false
	}
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: stringpool.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// MissingConfiguration builds the error listing every missing key
func MissingConfiguration(keys []string) *Error {
	missing := make([]string, len(keys))
	copy(missing, keys)

	e := &Error{
		Type:    ErrorTypeMissingConfig,
		Message: stringpool.Concat("missing required configuration: ", strings.Join(missing, ", ")),
		Stack:   captureStack(2),
	}
	return e.WithDetail(DetailMissingKeys, missing)
}

// MissingKeys returns the keys listed by a missing-configuration error
func MissingKeys(err error) []string {
	var e *Error
	if !errors.As(err, &e) || e.Type != ErrorTypeMissingConfig {
		return nil
	}
	if v, ok := e.Detail(DetailMissingKeys); ok {
		if keys, ok := v.([]string); ok {
			return keys
		}
	}
	return nil
}

// Violations returns the configuration format violations attached to err
func Violations(err error) []string {
	var e *Error
	if !errors.As(err, &e) {
		return nil
	}
	if v, ok := e.Detail(DetailViolations); ok {
		if list, ok := v.([]string); ok {
			return list
		}
	}
	return nil
}

// IsType checks if the outermost structured error in the chain is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost structured error, or ErrorTypeInternal
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ErrorTypeInternal
	}
	return e.Type
}

// Is and As re-export the standard library helpers so callers need a single import
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool { return errors.As(err, target) }

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
