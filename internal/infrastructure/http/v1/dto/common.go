// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"stocktrace/internal/core/apperror"
	"stocktrace/internal/core/id"
)

// --- List Response ---

// ListResponse wraps list results.
type ListResponse struct {
	Items  any `json:"items"`
	Count  int `json:"count"`
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- Success Response ---

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// --- ID parsing helpers ---

// ParseID parses a required UUID field.
func ParseID(field, value string) (id.ID, error) {
	parsed, err := id.Parse(value)
	if err != nil {
		return id.Nil(), apperror.NewValidation("invalid id").WithDetail("field", field)
	}
	return parsed, nil
}

// ParseOptionalID parses an optional UUID field. Empty string maps to
// the nil ID.
func ParseOptionalID(field, value string) (id.ID, error) {
	if value == "" {
		return id.Nil(), nil
	}
	return ParseID(field, value)
}

// ParseOptionalIDPtr parses an optional UUID field into a pointer.
func ParseOptionalIDPtr(field, value string) (*id.ID, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := ParseID(field, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
