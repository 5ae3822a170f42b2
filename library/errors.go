package library

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Error classes returned by the store and the manager. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrStorage    = errors.New("storage failure")

	// ErrInvalidCredentials is returned by Authenticate for an unknown email
	// or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}

func notFoundErr(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func conflictErr(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// storageErr classifies a driver error. Unique and foreign-key violations are
// conflicts; anything else is a storage failure. Errors that already carry a
// class pass through untouched.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrForbidden, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: duplicate record: %w", op, ErrConflict)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: record is still referenced: %w", op, ErrConflict)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%s: duplicate record: %w", op, ErrConflict)
		case "23503":
			return fmt.Errorf("%s: record is still referenced: %w", op, ErrConflict)
		}
	}

	return fmt.Errorf("%s: %v: %w", op, err, ErrStorage)
}
