package helper

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/siherrmann/annotator/model"
)

// NewError wraps err with the action that failed.
func NewError(action string, err error) error {
	return fmt.Errorf("error on %s: %w", action, err)
}

// Postgres error codes raised by the embedded SQL functions.
const (
	pqCodeForeignKeyViolation = "23503"
	pqCodeCheckViolation      = "23514"
)

// ClassifyDBError maps a database error onto the error taxonomy:
// foreign key violations become ErrReferential, check violations
// (span bounds) become ErrValidation, missing rows become ErrNotFound.
// Everything else is wrapped unchanged.
func ClassifyDBError(action string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("error on %s: %w", action, model.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqCodeForeignKeyViolation:
			return fmt.Errorf("error on %s: %w: %s", action, model.ErrReferential, pqErr.Message)
		case pqCodeCheckViolation:
			return fmt.Errorf("error on %s: %w: %s", action, model.ErrValidation, pqErr.Message)
		}
	}

	return NewError(action, err)
}
