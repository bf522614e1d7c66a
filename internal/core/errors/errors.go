package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error names carried in RequestError.Message.
const (
	ValidationErrorName     = "ValidationError"
	AuthenticationErrorName = "AuthenticationError"
	AuthorizationErrorName  = "AuthorizationError"
	MethodErrorName         = "MethodError"
	ConflictErrorName       = "ConflictError"
	NotFoundErrorName       = "NotFoundError"
	InternalErrorMessage    = "Internal server error"
)

// RequestError is a known failure of a write or read request.
// Code follows HTTP status semantics; Message names the error; Details is optional context.
type RequestError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RequestError) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

// ErrorResponse is the error body returned by the HTTP transport.
type ErrorResponse = RequestError

func ValidationError(details interface{}) *RequestError {
	return &RequestError{Code: http.StatusBadRequest, Message: ValidationErrorName, Details: details}
}

func AuthenticationError(details interface{}) *RequestError {
	return &RequestError{Code: http.StatusUnauthorized, Message: AuthenticationErrorName, Details: details}
}

func AuthorizationError(details interface{}) *RequestError {
	return &RequestError{Code: http.StatusForbidden, Message: AuthorizationErrorName, Details: details}
}

func MethodError(method string) *RequestError {
	return &RequestError{Code: http.StatusBadRequest, Message: MethodErrorName, Details: "Unsupported method " + method}
}

func ConflictError(details interface{}) *RequestError {
	return &RequestError{Code: http.StatusConflict, Message: ConflictErrorName, Details: details}
}

func NotFoundError(details interface{}) *RequestError {
	return &RequestError{Code: http.StatusNotFound, Message: NotFoundErrorName, Details: details}
}

// InternalError is opaque on purpose: the caller never sees the underlying cause.
func InternalError() *RequestError {
	return &RequestError{Code: http.StatusInternalServerError, Message: InternalErrorMessage}
}

// AsRequestError reports whether err is (or wraps) a RequestError.
func AsRequestError(err error) (*RequestError, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
