package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"library_circulation/circulation"
)

// Postgres SQLSTATE codes that mean "someone else got there first".
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	// uuid 列收到非法文本
	codeInvalidTextRepresentation = "22P02"
)

// translate maps gorm / pgconn failures onto the circulation taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return circulation.ErrNoRecord
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return circulation.Conflict("unique constraint violated", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeInvalidTextRepresentation:
			return circulation.ErrNoRecord
		case codeUniqueViolation:
			return circulation.Conflict(fmt.Sprintf("unique constraint %s violated", pgErr.ConstraintName), err)
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return circulation.Conflict("concurrent update: "+pgErr.Message, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return circulation.Transient("database operation timed out", err)
	}
	return circulation.Transient("database failure", err)
}
