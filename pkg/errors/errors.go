package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error types
var (
	ErrNotFound   = errors.New("resource not found")
	ErrBadRequest = errors.New("bad request")
	ErrConflict   = errors.New("resource conflict")
	ErrInternal   = errors.New("internal server error")
	ErrValidation = errors.New("validation error")
)

// Domain error types. Each one has its own code so callers and clients can
// branch on them without parsing messages.
var (
	ErrInvalidMovement   = errors.New("invalid movement")
	ErrAlreadyVoided     = errors.New("movement already voided")
	ErrInvalidParameters = errors.New("invalid optimization parameters")
	ErrAlertClosed       = errors.New("alert already closed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNoSupplier        = errors.New("no supplier assigned")
	ErrOrderConfirmed    = errors.New("order already confirmed")
	ErrOrderClosed       = errors.New("order closed")
	ErrExceedsRemaining  = errors.New("quantity exceeds remaining")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code string, message string, statusCode int) *AppError {
	return &AppError{
		Err:        err,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// NotFoundID is NotFound carrying the missing identifier.
func NotFoundID(resource, id string) *AppError {
	return NotFound(resource).WithDetails(map[string]string{"id": id})
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Err:        ErrConflict,
		Code:       "CONFLICT",
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Ledger errors

func InvalidMovement(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidMovement,
		Code:       "INVALID_MOVEMENT",
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func AlreadyVoided(movementID string) *AppError {
	return &AppError{
		Err:        ErrAlreadyVoided,
		Code:       "ALREADY_VOIDED",
		Message:    "movement has already been voided",
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"id": movementID},
	}
}

// Optimization errors

func InvalidParameters(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrInvalidParameters,
		Code:       "INVALID_PARAMETERS",
		Message:    "invalid optimization parameters",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// Alert errors

func AlertAlreadyClosed(alertID, state string) *AppError {
	return &AppError{
		Err:        ErrAlertClosed,
		Code:       "ALERT_ALREADY_CLOSED",
		Message:    "alert is already " + state,
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"id": alertID, "state": state},
	}
}

func InvalidTransition(from, action string) *AppError {
	return &AppError{
		Err:        ErrInvalidTransition,
		Code:       "INVALID_TRANSITION",
		Message:    fmt.Sprintf("cannot %s from state %s", action, from),
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"from": from, "action": action},
	}
}

// Purchase order errors

func NoSupplierAssigned(productID string) *AppError {
	return &AppError{
		Err:        ErrNoSupplier,
		Code:       "NO_SUPPLIER_ASSIGNED",
		Message:    "product has no primary supplier",
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]string{"product_id": productID},
	}
}

func OrderAlreadyConfirmed(orderID, state string) *AppError {
	return &AppError{
		Err:        ErrOrderConfirmed,
		Code:       "ORDER_ALREADY_CONFIRMED",
		Message:    "order is no longer a draft",
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"id": orderID, "state": state},
	}
}

func OrderClosed(orderID, state string) *AppError {
	return &AppError{
		Err:        ErrOrderClosed,
		Code:       "ORDER_CLOSED",
		Message:    "order is " + state,
		StatusCode: http.StatusConflict,
		Details:    map[string]string{"id": orderID, "state": state},
	}
}

func ExceedsRemaining(lineID string, requested, remaining int64) *AppError {
	return &AppError{
		Err:        ErrExceedsRemaining,
		Code:       "EXCEEDS_REMAINING",
		Message:    fmt.Sprintf("received quantity %d exceeds remaining %d", requested, remaining),
		StatusCode: http.StatusUnprocessableEntity,
		Details: map[string]string{
			"line_id":   lineID,
			"requested": fmt.Sprint(requested),
			"remaining": fmt.Sprint(remaining),
		},
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
