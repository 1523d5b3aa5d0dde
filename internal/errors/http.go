// Package errors defines the HTTP error envelope used by the server.
//
// Errors are carried as gofulmen error envelopes and written with the shape
//
//	{"error": {"code": "...", "message": "...", "details": {...}, "request_id": "...", "timestamp": "..."}}
//
// Envelope context entries are merged into details.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"

	fulmenerrors "github.com/fulmenhq/gofulmen/errors"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// Error codes used in HTTP responses.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	CodeInternal           = "INTERNAL_ERROR"
)

// HTTPError is the body of an error response.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// HTTPErrorResponse is the error envelope.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// FromEnvelope converts a gofulmen error envelope into a response body.
func FromEnvelope(env *fulmenerrors.ErrorEnvelope) HTTPErrorResponse {
	var details map[string]any
	if len(env.Details) > 0 || len(env.Context) > 0 {
		details = make(map[string]any, len(env.Details)+len(env.Context))
		maps.Copy(details, env.Details)
		maps.Copy(details, env.Context)
	}
	return HTTPErrorResponse{Error: HTTPError{
		Code:      env.Code,
		Message:   env.Message,
		Details:   details,
		RequestID: env.CorrelationID,
		Timestamp: env.Timestamp,
	}}
}

// AppError is an error with an HTTP status and code.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Envelope returns e as a gofulmen error envelope correlated with requestID.
// The wrapped cause is not included.
func (e *AppError) Envelope(requestID string) *fulmenerrors.ErrorEnvelope {
	env := fulmenerrors.NewErrorEnvelope(e.Code, e.Message).WithCorrelationID(requestID)
	if len(e.Details) > 0 {
		env = env.WithDetails(e.Details)
	}
	return env
}

// BadRequest reports invalid client input.
func BadRequest(message string, err error) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: message, Err: err}
}

// NotFound reports an unknown resource.
func NotFound(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// MethodNotAllowed reports an unsupported method on a known route.
func MethodNotAllowed(message string) *AppError {
	return &AppError{Status: http.StatusMethodNotAllowed, Code: CodeMethodNotAllowed, Message: message}
}

// Conflict reports a request that clashes with work in progress.
func Conflict(message string) *AppError {
	return &AppError{Status: http.StatusConflict, Code: CodeConflict, Message: message}
}

// ServiceUnavailable reports a dependency failure.
func ServiceUnavailable(message string, details map[string]any, err error) *AppError {
	return &AppError{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message, Details: details, Err: err}
}

// GatewayTimeout reports an upstream deadline.
func GatewayTimeout(message string, err error) *AppError {
	return &AppError{Status: http.StatusGatewayTimeout, Code: CodeGatewayTimeout, Message: message, Err: err}
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: err}
}

// RespondWithError writes err as a JSON error envelope. Errors that are not
// an *AppError are reported as 500 INTERNAL_ERROR.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = Internal("internal server error", err)
	}

	var requestID string
	if r != nil {
		requestID = r.Header.Get(RequestIDHeader)
	}

	WriteEnvelope(w, appErr.Status, appErr.Envelope(requestID))
}

// WriteEnvelope writes env as a JSON error response with status.
func WriteEnvelope(w http.ResponseWriter, status int, env *fulmenerrors.ErrorEnvelope) {
	WriteJSON(w, status, FromEnvelope(env))
}

// WriteJSON writes v as a JSON response with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
