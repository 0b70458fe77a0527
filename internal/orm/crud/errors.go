package crud

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/fixhub/fixhub/internal/orm/schema"
)

// Error taxonomy of the entity service
var (
	// ErrUnknownEntity is returned for entity keys missing from the registry
	ErrUnknownEntity = schema.ErrUnknownEntity

	// ErrBadRequest is returned for malformed ids, invalid data or
	// disallowed lookups. It is raised before any statement executes.
	ErrBadRequest = errors.New("bad request")

	// ErrNotFound is returned when a referenced record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrForbidden is returned when modifying or deleting a protected record
	ErrForbidden = errors.New("forbidden")

	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")
)

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// ConvertDBError converts driver errors to service errors. Both pgx and
// lib/pq error types are understood.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if converted := convertCode(pgErr.Code, pgErr.Detail, pgErr.ColumnName); converted != nil {
			return converted
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if converted := convertCode(string(pqErr.Code), pqErr.Detail, pqErr.Column); converted != nil {
			return converted
		}
	}

	return err
}

func convertCode(code, detail, column string) error {
	switch code {
	case "23505": // unique_violation
		return fmt.Errorf("%w: %s", ErrUniqueViolation, detail)
	case "23503": // foreign_key_violation
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, detail)
	case "23514": // check_violation
		return fmt.Errorf("%w: %s", ErrCheckViolation, detail)
	case "23502": // not_null_violation
		return fmt.Errorf("%w: column %s", ErrNotNullViolation, column)
	default:
		return nil
	}
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBadRequest returns true if the error is ErrBadRequest
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsForbidden returns true if the error is ErrForbidden
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict returns true if the error is a unique or foreign key violation
func IsConflict(err error) bool {
	return errors.Is(err, ErrUniqueViolation) || errors.Is(err, ErrForeignKeyViolation)
}
