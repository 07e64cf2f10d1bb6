// Package pgerr classifies PostgreSQL driver failures for the SQL-backed stores.
package pgerr

import (
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeTooManyConnections   = "53300"
	codeCannotConnectNow     = "57P03"
	classConnectionException = "08"
)

// IsTransient reports contention and availability failures that deserve a retry.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeTooManyConnections, codeCannotConnectNow:
			return true
		}
		return len(pgErr.Code) == 5 && pgErr.Code[:2] == classConnectionException
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// Classify wraps transient failures in inventory.ErrTransientStore and leaves the rest fatal.
// Extra checks cover other drivers sharing the same store.
func Classify(err error, extra ...func(error) bool) error {
	if err == nil {
		return nil
	}
	transient := IsTransient(err)
	for _, check := range extra {
		transient = transient || check(err)
	}
	if transient {
		return fmt.Errorf("%w: %v", inventory.ErrTransientStore, err)
	}
	return err
}
