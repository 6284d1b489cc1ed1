package types

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorKind is the machine-readable classification carried by every failing
// response.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindConfig        ErrorKind = "CONFIG"
	KindAuth          ErrorKind = "AUTH"
	KindRateLimit     ErrorKind = "RATE_LIMIT"
	KindTimeout       ErrorKind = "TIMEOUT"
	KindNetwork       ErrorKind = "NETWORK"
	KindProvider      ErrorKind = "PROVIDER"
	KindRouting       ErrorKind = "ROUTING"
	KindDataIntegrity ErrorKind = "DATA_INTEGRITY"
	KindCache         ErrorKind = "CACHE"
	KindAIService     ErrorKind = "AI_SERVICE"
	KindUnsupported   ErrorKind = "UNSUPPORTED"
	KindCancelled     ErrorKind = "CANCELLED"
	KindUnknown       ErrorKind = "UNKNOWN"
)

// Error is the uniform error value used across adapters, transport and the
// API surface. It satisfies the error interface so it can flow through
// ordinary return paths, and marshals to the structured wire shape.
type Error struct {
	Kind    ErrorKind      `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// WithDetail returns the error with an added detail entry.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// Retriable reports whether transport may retry the failed call.
func (e *Error) Retriable() bool {
	switch e.Kind {
	case KindRateLimit, KindTimeout, KindNetwork, KindProvider:
		return true
	default:
		return false
	}
}

// UserMessage maps the kind to a short human-friendly explanation.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindValidation:
		return "The request is invalid. Please check the input and try again."
	case KindConfig:
		return "The service is misconfigured. Please contact the operator."
	case KindAuth:
		return "Authentication failed. Please check your credentials."
	case KindRateLimit:
		return "Too many requests. Please slow down and try again shortly."
	case KindTimeout:
		return "The oracle took too long to respond. Please try again."
	case KindNetwork:
		return "A network problem interrupted the request. Please try again."
	case KindProvider:
		return "The oracle provider reported an error. Please try again later."
	case KindRouting:
		return "No oracle can resolve this question with the given constraints."
	case KindDataIntegrity:
		return "Oracle sources disagree beyond tolerance. Treat the result with caution."
	case KindCache:
		return "A caching problem occurred. The request was served without cache."
	case KindAIService:
		return "The AI service is unavailable. A rule-based result was used instead."
	case KindUnsupported:
		return "This operation is not supported by the selected oracle."
	case KindCancelled:
		return "The request was cancelled before it completed."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// UnmarshalJSON accepts both the structured object shape and the legacy bare
// string shape for the error field.
func (e *Error) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		e.Kind = KindUnknown
		e.Message = s
		return nil
	}

	type alias Error
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Error(a)
	return nil
}

// KindFromStatus classifies an HTTP status code.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindProvider
	case status >= 400:
		return KindValidation
	default:
		return KindUnknown
	}
}

// AsError coerces any error into the uniform shape, preserving an existing
// *Error unchanged.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: KindUnknown, Message: err.Error()}
}

// Sentinels a caller may match with errors.Is.
var (
	ErrEmptyQuestion = &Error{Kind: KindValidation, Message: "question must not be empty"}
	ErrEmptyQuery    = &Error{Kind: KindValidation, Message: "query must not be empty"}
)
