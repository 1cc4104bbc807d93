// Package errors provides kinded errors and their RFC 7807 Problem Details rendering
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions
var (
	Is = errors.Is
	As = errors.As
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func Status(code int) *Error {
	return &Error{Kind: http.StatusText(code), status: code}
}

var (
	Invalid      *Error = Status(http.StatusBadRequest)
	Unauthorized *Error = Status(http.StatusUnauthorized)
	Forbidden    *Error = Status(http.StatusForbidden)
	NotFound     *Error = Status(http.StatusNotFound)
	Conflict     *Error = Status(http.StatusConflict)
	Internal     *Error = Status(http.StatusInternalServerError)
	Unavailable  *Error = Status(http.StatusServiceUnavailable)
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`

	status int
	cause  error
}

var _ error = (*Error)(nil)

func New(message string) *Error {
	return &Error{Kind: "Unknown", Message: message, status: http.StatusInternalServerError}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] ", e.Kind)
	if e.Message != "" {
		str += e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

// HTTPStatus returns the status code the error maps to.
func (e *Error) HTTPStatus() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Wrap returns a copy of the error with the given cause
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// WithField returns a copy of error with the field appended.
func (e *Error) WithField(kind, field, message string) *Error {
	newError := *e
	newError.Fields = append(append([]FieldError(nil), e.Fields...), FieldError{Kind: kind, Field: field, Message: message})
	return &newError
}

// Is implements the needed interface for errors.Is
// It checks kind for equality
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	return false
}

// Detail returns the client facing message, falling back to the kind.
func (e *Error) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind
}

// Problem type URIs
const (
	TypeValidationError  = "https://ops.finalex.io/problems/validation-error"
	TypeUnauthorized     = "https://ops.finalex.io/problems/unauthorized"
	TypeForbidden        = "https://ops.finalex.io/problems/forbidden"
	TypeNotFound         = "https://ops.finalex.io/problems/not-found"
	TypeConflict         = "https://ops.finalex.io/problems/conflict"
	TypeInternalError    = "https://ops.finalex.io/problems/internal-error"
	TypeUpstreamDegraded = "https://ops.finalex.io/problems/upstream-degraded"
)

// Problem titles
const (
	TitleValidationError  = "Validation Error"
	TitleUnauthorized     = "Unauthorized"
	TitleForbidden        = "Forbidden"
	TitleNotFound         = "Not Found"
	TitleConflict         = "Conflict"
	TitleInternalError    = "Internal Server Error"
	TitleUpstreamDegraded = "Upstream Degraded"
)

// ValidationError represents a validation error for RFC 7807
type ValidationError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithValidationErrors adds validation errors to the problem details
func (p *ProblemDetails) WithValidationErrors(errors []ValidationError) *ProblemDetails {
	p.Errors = errors
	return p
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON implements custom JSON marshaling to include extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}
	for k, v := range p.Extra {
		result[k] = v
	}

	return json.Marshal(result)
}

func newProblem(typ, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     typ,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

// NewValidationError creates a validation error problem
func NewValidationError(detail, instance string) *ProblemDetails {
	return newProblem(TypeValidationError, TitleValidationError, http.StatusBadRequest, detail, instance)
}

// NewUnauthorizedError creates an unauthorized error problem
func NewUnauthorizedError(detail, instance string) *ProblemDetails {
	return newProblem(TypeUnauthorized, TitleUnauthorized, http.StatusUnauthorized, detail, instance)
}

// NewForbiddenError creates a forbidden error problem
func NewForbiddenError(detail, instance string) *ProblemDetails {
	return newProblem(TypeForbidden, TitleForbidden, http.StatusForbidden, detail, instance)
}

// NewNotFoundError creates a not found error problem
func NewNotFoundError(detail, instance string) *ProblemDetails {
	return newProblem(TypeNotFound, TitleNotFound, http.StatusNotFound, detail, instance)
}

// NewConflictError creates a conflict error problem
func NewConflictError(detail, instance string) *ProblemDetails {
	return newProblem(TypeConflict, TitleConflict, http.StatusConflict, detail, instance)
}

// NewInternalError creates an internal server error problem
func NewInternalError(detail, instance string) *ProblemDetails {
	return newProblem(TypeInternalError, TitleInternalError, http.StatusInternalServerError, detail, instance)
}

// NewUpstreamDegradedError creates a problem for a ledger source that could not be read
func NewUpstreamDegradedError(detail, instance string) *ProblemDetails {
	return newProblem(TypeUpstreamDegraded, TitleUpstreamDegraded, http.StatusServiceUnavailable, detail, instance)
}

// ToProblemDetails converts any error into problem details. Errors that are
// not kinded are reported as internal errors without their text.
func ToProblemDetails(err error, instance string) *ProblemDetails {
	var pd *ProblemDetails
	if As(err, &pd) {
		return pd
	}

	var kinded *Error
	if !As(err, &kinded) {
		return NewInternalError("an unexpected error occurred", instance)
	}

	switch kinded.HTTPStatus() {
	case http.StatusBadRequest:
		pd = NewValidationError(kinded.Detail(), instance)
		if len(kinded.Fields) > 0 {
			verrs := make([]ValidationError, 0, len(kinded.Fields))
			for _, f := range kinded.Fields {
				verrs = append(verrs, ValidationError{Field: f.Field, Code: f.Kind, Message: f.Message})
			}
			pd.WithValidationErrors(verrs)
		}
	case http.StatusUnauthorized:
		pd = NewUnauthorizedError(kinded.Detail(), instance)
	case http.StatusForbidden:
		pd = NewForbiddenError(kinded.Detail(), instance)
	case http.StatusNotFound:
		pd = NewNotFoundError(kinded.Detail(), instance)
	case http.StatusConflict:
		pd = NewConflictError(kinded.Detail(), instance)
	case http.StatusServiceUnavailable:
		pd = NewUpstreamDegradedError(kinded.Detail(), instance)
	default:
		pd = NewInternalError("an unexpected error occurred", instance)
	}
	return pd
}
