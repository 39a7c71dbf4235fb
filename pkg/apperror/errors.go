package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Security (SEC) ----

// ErrInvalidSignature rejects a webhook before its body is parsed.
func ErrInvalidSignature() *AppError {
	return New("SEC_001", "Invalid webhook signature", http.StatusUnauthorized)
}

func ErrInvalidAdminToken() *AppError {
	return New("SEC_002", "Invalid admin token", http.StatusUnauthorized)
}

// ---- Ingress (ING) ----

func ErrMalformedPayload(err error) *AppError {
	return Wrap("ING_001", "Malformed webhook payload", http.StatusBadRequest, err)
}

func ErrQueueFull() *AppError {
	return New("ING_002", "Event queue at capacity, retry later", http.StatusServiceUnavailable)
}

// ---- Registry (REG) ----

func ErrRemoteRegistration(err error) *AppError {
	return Wrap("REG_001", "CRM webhook registration failed", http.StatusBadGateway, err)
}

func ErrWebhookNotFound(name string) *AppError {
	return New("REG_002", fmt.Sprintf("Webhook %q not found", name), http.StatusNotFound)
}

func ErrWebhookExists(name string) *AppError {
	return New("REG_003", fmt.Sprintf("Webhook %q already registered", name), http.StatusConflict)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

func ErrQueueUnavailable(err error) *AppError {
	return Wrap("SYS_002", "Event queue unavailable", http.StatusInternalServerError, err)
}

// Validation returns a generic request validation error.
func Validation(message string) *AppError {
	return New("ING_003", message, http.StatusBadRequest)
}
