package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/godamri/helix-audit/http/response"
)

var (
	ErrNoRows              = errors.New("database: no rows")
	ErrUniqueViolation     = errors.New("database: unique violation")
	ErrForeignKeyViolation = errors.New("database: referenced record not found")
	ErrCheckViolation      = errors.New("database: check violation")
	ErrSerialization       = errors.New("database: serialization failure, retry transaction")
	ErrQueryCanceled       = errors.New("database: query timeout")
)

// MapError translates driver errors into the sentinels above. Unknown errors
// are wrapped unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNoRows, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrCheckViolation, pgErr.Message)
		case "40001": // serialization_failure
			return ErrSerialization
		case "57014": // query_canceled
			return ErrQueryCanceled
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryCanceled, err)
	}

	return fmt.Errorf("database: %w", err)
}

// ResponseCode maps a (mapped) database error onto an API error code.
func ResponseCode(err error) string {
	switch {
	case errors.Is(err, ErrNoRows):
		return response.ErrNotFound
	case errors.Is(err, ErrUniqueViolation):
		return response.ErrAlreadyExists
	case errors.Is(err, ErrForeignKeyViolation):
		return response.ErrConflict
	case errors.Is(err, ErrCheckViolation):
		return response.ErrValidation
	case errors.Is(err, ErrSerialization):
		return response.ErrVersionMismatch
	case errors.Is(err, ErrQueryCanceled):
		return response.ErrGatewayTimeout
	}
	return response.ErrSystem
}

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows) || errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}
