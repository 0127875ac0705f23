package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/stockflow/stockflow-backend/pkg/errors"
)

// PostgreSQL error codes used by the repositories.
const (
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeCheckViolation      = "23514"
	CodeNotNullViolation    = "23502"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	case CodeCheckViolation:
		return mapCheckConstraint(pqErr)

	case CodeUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr))

	case CodeForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist")

	case CodeNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	case strings.Contains(constraint, "thresholds_valid"):
		return errors.Validation(map[string]string{
			"maximum": "must be greater than or equal to minimum",
		})

	case strings.Contains(constraint, "received_within_ordered"):
		return errors.InvalidMovement("received quantity exceeds ordered quantity")

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "order_number"):
		return "a purchase order with this number already exists"
	case strings.Contains(constraint, "open_alert"):
		return "an open alert of this type already exists for the product"
	default:
		return "a record with these values already exists"
	}
}
