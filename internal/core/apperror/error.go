// Package apperror provides structured error handling for the ledger service.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes grouped by concern.
const (
	// Infrastructure errors (5xx)
	CodeInternal  = "INTERNAL_ERROR"
	CodeDatabase  = "DATABASE_ERROR"
	CodeIntegrity = "INTEGRITY_MISMATCH"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeBusinessRule          = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeProvenance            = "PROVENANCE_ERROR"
	CodeConservation          = "CONSERVATION_ERROR"
	CodeAlreadyInspected      = "ARRIVAL_ALREADY_INSPECTED"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict = "CONFLICT"
)

// AppError is the standard error type for the service.
// It implements the error interface and carries structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400).
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404).
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422).
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientInventory creates an inventory shortage error.
func NewInsufficientInventory(partID string, requested, available float64) *AppError {
	return &AppError{
		Code:       CodeInsufficientInventory,
		Message:    "Insufficient inventory",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"part_id":   partID,
			"requested": requested,
			"available": available,
		},
	}
}

// NewProvenance creates an error for movements whose receipt lineage
// cannot be established. The message stays generic so callers do not
// leak ledger internals to clients.
func NewProvenance(partID string) *AppError {
	return &AppError{
		Code:       CodeProvenance,
		Message:    "Unable to establish movement provenance",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"part_id": partID},
	}
}

// NewConservation creates an error for inspection splits that do not
// add up to the received quantity.
func NewConservation(arrivalID string, received, accepted, rejected float64) *AppError {
	return &AppError{
		Code:       CodeConservation,
		Message:    "Accepted and rejected quantities must equal quantity received",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"arrival_id": arrivalID,
			"received":   received,
			"accepted":   accepted,
			"rejected":   rejected,
		},
	}
}

// NewAlreadyInspected is returned when an arrival was already split.
func NewAlreadyInspected(arrivalID string, status string) *AppError {
	return &AppError{
		Code:       CodeAlreadyInspected,
		Message:    "Arrival has already been inspected",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"arrival_id": arrivalID, "status": status},
	}
}

// NewIntegrityMismatch reports divergence between the ledger and a
// derived aggregate. This is a diagnostic error, not a user error.
func NewIntegrityMismatch(message string) *AppError {
	return &AppError{
		Code:       CodeIntegrity,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewInternal creates an internal server error (hides details from client).
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401).
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403).
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// NewConflict creates a conflict error (409).
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound.
func IsNotFound(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsInsufficientInventory checks if error is CodeInsufficientInventory.
func IsInsufficientInventory(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == CodeInsufficientInventory
	}
	return false
}
