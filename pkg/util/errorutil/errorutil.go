package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the bot core and the HTTP layer.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeDuplicateSource     = "DUPLICATE_SOURCE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeCollaboratorFailure = "COLLABORATOR_FAILURE"
	CodeValidation          = "VALIDATION_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewDuplicateSource reports that a ticket already exists for a source message.
func NewDuplicateSource(ticketID string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["ticket_id"] = ticketID
	return &DomainError{
		Code:       CodeDuplicateSource,
		Message:    "ticket already exists for source message",
		HTTPStatus: http.StatusConflict,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewCollaboratorFailure wraps an error returned by an outbound platform call.
func NewCollaboratorFailure(operation string, err error) error {
	return &DomainError{
		Code:       CodeCollaboratorFailure,
		Message:    operation + " failed",
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"operation": operation},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

func IsDuplicateSource(err error) bool { return HasCode(err, CodeDuplicateSource) }

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
