package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the closed set of error categories the provider distinguishes.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindGrant
	KindNotFound
	KindConflict
	KindMethodNotAllowed
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindGrant:
		return "grant"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	default:
		return "internal"
	}
}

// ErrorCode is the stable code exposed to clients
type ErrorCode string

const (
	ErrCodeInvalidRequest       ErrorCode = "invalid_request"
	ErrCodeInvalidToken         ErrorCode = "invalid_token"
	ErrCodeInvalidGrant         ErrorCode = "invalid_grant"
	ErrCodeInvalidClient        ErrorCode = "invalid_client"
	ErrCodeInvalidCredentials   ErrorCode = "invalid_credentials"
	ErrCodeUnsupportedGrantType ErrorCode = "unsupported_grant_type"
	ErrCodeNotFound             ErrorCode = "not_found"
	ErrCodeConflict             ErrorCode = "conflict"
	ErrCodeMethodNotAllowed     ErrorCode = "method_not_allowed"
	ErrCodeServerError          ErrorCode = "server_error"
)

// Issue is a single field-level problem inside a validation error
type Issue struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error represents a structured error with kind, code, and optional details
type Error struct {
	Kind    Kind
	Code    ErrorCode
	Message string
	// Reason is a stable machine-readable sub-code, e.g. "code_expired".
	Reason  string
	Issues  []Issue
	Details map[string]interface{}
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Reason != "" {
		msg = fmt.Sprintf("[%s/%s] %s", e.Code, e.Reason, e.Message)
	}
	if len(e.Issues) > 0 {
		msg += ": " + strings.Join(e.IssueMessages(), ", ")
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithReason sets the stable sub-code
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// IssueMessages returns the messages of all issues in order
func (e *Error) IssueMessages() []string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		messages = append(messages, issue.Message)
	}
	return messages
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindValidation, KindGrant:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to send to a client. Internal causes are never exposed.
func (e *Error) PublicMessage() string {
	if e.Kind == KindInternal {
		return "Internal server error"
	}
	return e.Message
}

// New creates a new Error
func New(kind Kind, code ErrorCode, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(kind Kind, code ErrorCode, format string, args ...interface{}) *Error {
	return New(kind, code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with kind, code and message
func Wrap(err error, kind Kind, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation creates a request validation error carrying field issues
func Validation(message string, issues ...Issue) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    ErrCodeInvalidRequest,
		Message: message,
		Issues:  issues,
	}
}

// Grant creates an invalid_grant error with a stable reason
func Grant(reason, message string) *Error {
	return &Error{
		Kind:    KindGrant,
		Code:    ErrCodeInvalidGrant,
		Message: message,
		Reason:  reason,
	}
}

// Authentication creates an invalid_token style error
func Authentication(message string, err error) *Error {
	return &Error{
		Kind:    KindAuthentication,
		Code:    ErrCodeInvalidToken,
		Message: message,
		Err:     err,
	}
}

// InvalidCredentials is the uniform login failure
func InvalidCredentials() *Error {
	return New(KindAuthentication, ErrCodeInvalidCredentials, "Invalid email or password")
}

// InvalidClient is a failed client authentication at the token endpoint
func InvalidClient(message string) *Error {
	return New(KindAuthentication, ErrCodeInvalidClient, message)
}

// UnsupportedGrantType rejects any grant other than authorization_code
func UnsupportedGrantType(grantType string) *Error {
	return Newf(KindValidation, ErrCodeUnsupportedGrantType, "grant_type %q is not supported", grantType)
}

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(KindNotFound, ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// Conflict creates a "conflict" error
func Conflict(message string) *Error {
	return New(KindConflict, ErrCodeConflict, message)
}

// MethodNotAllowed creates a "method not allowed" error
func MethodNotAllowed() *Error {
	return New(KindMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
}

// Internal wraps an unexpected failure
func Internal(err error, message string) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    ErrCodeServerError,
		Message: message,
		Err:     err,
	}
}

// As extracts a structured Error. Plain errors become internal errors.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err, "unexpected error")
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// KindOf returns the kind of err, KindInternal for unstructured errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a structured Error of the given kind
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ReasonOf returns the stable sub-code of err, if any
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
