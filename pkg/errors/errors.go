package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Sentinel values shared by the analyzer packages
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternalError = errors.New("internal error")
	ErrUnavailable   = errors.New("service unavailable")
	ErrTimeout       = errors.New("operation timed out")

	// ErrConfiguration marks a pattern configuration that failed schema validation.
	// It is fatal: the analyzer never runs against a partially valid configuration.
	ErrConfiguration = errors.New("invalid pattern configuration")

	// ErrInvalidTranscript marks a conversation payload that could not be decoded at all.
	ErrInvalidTranscript = errors.New("invalid transcript")

	// ErrPublishFailed marks a report that could not be delivered to a sink.
	ErrPublishFailed = errors.New("report publish failed")

	// ErrRateLimited marks a request refused by the rate limiter.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Error codes attached by the typed constructors
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeConfiguration     = "CONFIGURATION_ERROR"
	CodeInvalidTranscript = "INVALID_TRANSCRIPT"
	CodePublishFailed     = "PUBLISH_FAILED"
	CodeRateLimited       = "RATE_LIMITED"
)

// Error is a structured error carrying context fields, a code and the place it was raised
type Error struct {
	original error
	message  string
	fields   map[string]interface{}

	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

func build(original error, message, code string, skip int, fields []map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(skip)

	fieldMap := make(map[string]interface{})
	if len(fields) > 0 && fields[0] != nil {
		for k, v := range fields[0] {
			fieldMap[k] = v
		}
	}

	return &Error{
		original: original,
		message:  message,
		fields:   fieldMap,
		file:     file,
		line:     line,
		Code:     code,
	}
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	return build(errors.New(message), message, "", 2, fields)
}

// Wrap wraps an existing error with additional context. Wrapping nil returns nil.
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}
	return build(err, message, "", 2, fields)
}

// NewConfiguration reports a pattern configuration that failed validation.
// Every violation found is listed under the "violations" field.
func NewConfiguration(message string, violations []string) *Error {
	fields := map[string]interface{}{}
	if len(violations) > 0 {
		fields["violations"] = append([]string(nil), violations...)
	}
	return build(ErrConfiguration, message, CodeConfiguration, 2, []map[string]interface{}{fields})
}

// NewInvalidTranscript reports a conversation payload that could not be decoded
func NewInvalidTranscript(details string, fields ...map[string]interface{}) *Error {
	return build(ErrInvalidTranscript, fmt.Sprintf("invalid transcript: %s", details), CodeInvalidTranscript, 2, fields)
}

// NewInvalidInput creates a new ErrInvalidInput error with additional context
func NewInvalidInput(message string, fields ...map[string]interface{}) *Error {
	return build(ErrInvalidInput, message, CodeInvalidInput, 2, fields)
}

// NewInternalError creates a new ErrInternalError with additional context
func NewInternalError(message string, fields ...map[string]interface{}) *Error {
	return build(ErrInternalError, message, CodeInternalError, 2, fields)
}

// NewNotFound creates a new ErrNotFound error with additional context
func NewNotFound(message string, fields ...map[string]interface{}) *Error {
	return build(ErrNotFound, message, CodeNotFound, 2, fields)
}

// NewPublishFailed wraps a delivery failure for the named sink
func NewPublishFailed(sink string, cause error) *Error {
	e := build(ErrPublishFailed, fmt.Sprintf("publish to %s failed: %v", sink, cause), CodePublishFailed, 2, nil)
	e.fields["sink"] = sink
	return e
}

// NewRateLimited reports a request refused by the rate limiter
func NewRateLimited(fields ...map[string]interface{}) *Error {
	return build(ErrRateLimited, "", CodeRateLimited, 2, fields)
}

func (e *Error) clone(extra int) *Error {
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+extra),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}
	for k, v := range e.fields {
		result.fields[k] = v
	}
	return result
}

// WithField returns a copy of the error with one more context field
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(1)
	result.fields[key] = value
	return result
}

// WithFields returns a copy of the error with the given context fields added
func (e *Error) WithFields(fields map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(len(fields))
	for k, v := range fields {
		result.fields[k] = v
	}
	return result
}

// WithCode returns a copy of the error carrying the given code
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	result := e.clone(0)
	result.Code = code
	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}
	if e.message == "" || e.message == e.original.Error() {
		return e.original.Error()
	}
	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Is reports whether the wrapped error matches target
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	if errors.Is(e.original, target) {
		return true
	}
	return e == target
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}
	parts := strings.Split(e.file, "/")
	return fmt.Sprintf("%s:%d", parts[len(parts)-1], e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// GetCode returns the error's code
func (e *Error) GetCode() string {
	if e == nil {
		return ""
	}
	return e.Code
}

// AsJSON returns the error in JSON-friendly map format
func (e *Error) AsJSON() map[string]interface{} {
	if e == nil {
		return nil
	}

	result := map[string]interface{}{
		"error":    e.Error(),
		"location": e.Location(),
	}
	if e.Code != "" {
		result["code"] = e.Code
	}
	if len(e.fields) > 0 {
		result["context"] = e.fields
	}
	return result
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetErrorCode returns the first non-empty code in err's chain
func GetErrorCode(err error) string {
	for err != nil {
		var serr *Error
		if !errors.As(err, &serr) {
			return ""
		}
		if serr.Code != "" {
			return serr.Code
		}
		err = serr.original
	}
	return ""
}

// Violations returns every configuration violation recorded in err's chain
func Violations(err error) []string {
	for err != nil {
		var serr *Error
		if !errors.As(err, &serr) {
			return nil
		}
		if v, ok := serr.fields["violations"].([]string); ok {
			return v
		}
		err = serr.original
	}
	return nil
}

// GetErrorFields extracts fields from an error if it's a structured error
func GetErrorFields(err error) map[string]interface{} {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.GetFields()
	}
	return nil
}
