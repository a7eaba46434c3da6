package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrInternal

	ErrAccessDenied
	ErrRoleAlreadyAssigned
	ErrAlreadyRegistered
	ErrDoctorNotRegistered
	ErrPatientNotRegistered
	ErrNotAssignedDoctor
	ErrAlreadyConfirmed
	ErrRecordNotFound
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to an HTTP status. Picked up by the
// error-handling middleware.
func (e *AppError) StatusCode() int {
	switch e.Code {
	case ErrNotFound, ErrRecordNotFound:
		return http.StatusNotFound
	case ErrBadRequest, ErrDoctorNotRegistered, ErrPatientNotRegistered:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrAccessDenied, ErrNotAssignedDoctor:
		return http.StatusForbidden
	case ErrRoleAlreadyAssigned, ErrAlreadyRegistered, ErrAlreadyConfirmed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the ErrorCode from err, or ErrInternal when err is not
// an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Error constructors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

func Internal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Guard and ledger error constructors

func AccessDenied(message string) *AppError {
	return &AppError{
		Code:    ErrAccessDenied,
		Message: message,
	}
}

func RoleAlreadyAssigned(identity string) *AppError {
	return &AppError{
		Code:    ErrRoleAlreadyAssigned,
		Message: fmt.Sprintf("identity %s already holds a role", identity),
	}
}

func AlreadyRegistered(kind, identity string) *AppError {
	return &AppError{
		Code:    ErrAlreadyRegistered,
		Message: fmt.Sprintf("%s %s is already registered", kind, identity),
	}
}

func DoctorNotRegistered(identity string) *AppError {
	return &AppError{
		Code:    ErrDoctorNotRegistered,
		Message: fmt.Sprintf("doctor %s is not registered", identity),
	}
}

func PatientNotRegistered(identity string) *AppError {
	return &AppError{
		Code:    ErrPatientNotRegistered,
		Message: fmt.Sprintf("patient %s is not registered", identity),
	}
}

func NotAssignedDoctor(appointmentID uint64) *AppError {
	return &AppError{
		Code:    ErrNotAssignedDoctor,
		Message: fmt.Sprintf("caller is not the assigned doctor for appointment %d", appointmentID),
	}
}

func AlreadyConfirmed(appointmentID uint64) *AppError {
	return &AppError{
		Code:    ErrAlreadyConfirmed,
		Message: fmt.Sprintf("appointment %d is already confirmed", appointmentID),
	}
}

func RecordNotFound(recordID uint64) *AppError {
	return &AppError{
		Code:    ErrRecordNotFound,
		Message: fmt.Sprintf("medical record %d not found", recordID),
	}
}
