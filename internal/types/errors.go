package types

import (
	"encoding/json"
	"net/http"
)

// APIError represents an OpenAI-compatible error response.
type APIError struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Message   string  `json:"message"`
	Type      string  `json:"type"`
	Param     *string `json:"param,omitempty"`
	Code      *string `json:"code,omitempty"`
	RequestID string  `json:"request_id,omitempty"`
	Streaming *bool   `json:"streaming,omitempty"`
}

// Error type constants
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeAuthentication = "authentication_error"
	ErrorTypeRateLimit      = "rate_limit_error"
	ErrorTypeAPI            = "api_error"
	ErrorTypeServer         = "server_error"
	ErrorTypeNotFound       = "not_found_error"
)

// ErrorCodeTimeout is the code carried by request-timeout responses.
const ErrorCodeTimeout = "timeout"

// NewAPIError creates a new API error.
func NewAPIError(message, errType string) *APIError {
	return &APIError{
		Error: ErrorDetail{
			Message: message,
			Type:    errType,
		},
	}
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(message, ErrorTypeInvalidRequest)
}

// ErrAuthentication creates an authentication error.
func ErrAuthentication(message string) *APIError {
	return NewAPIError(message, ErrorTypeAuthentication)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return NewAPIError(message, ErrorTypeRateLimit)
}

// ErrServer creates a server error.
func ErrServer(message string) *APIError {
	return NewAPIError(message, ErrorTypeServer)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(message, ErrorTypeNotFound)
}

// ErrUpstream creates a 502-class upstream failure error.
func ErrUpstream(message string) *APIError {
	return NewAPIError(message, ErrorTypeAPI)
}

// ErrTimeout creates the 408 timeout envelope carrying request metadata.
func ErrTimeout(requestID string, streaming bool) *APIError {
	code := ErrorCodeTimeout
	return &APIError{
		Error: ErrorDetail{
			Message:   "request timed out before the upstream produced a response",
			Type:      ErrorTypeAPI,
			Code:      &code,
			RequestID: requestID,
			Streaming: &streaming,
		},
	}
}

// Marshal returns the JSON encoding of the error envelope.
func (e *APIError) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// WriteError writes an API error to the response writer.
func WriteError(w http.ResponseWriter, statusCode int, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(err)
}
