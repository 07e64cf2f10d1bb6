package inventory

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the inventory service and the stores behind it.
var (
	ErrInvalidUPC           = errors.New("invalid upc")
	ErrInvalidBusinessDate  = errors.New("invalid business date")
	ErrInvalidAction        = errors.New("invalid shopping action")
	ErrInvalidWriteMode     = errors.New("invalid write mode")
	ErrInvalidForceLevel    = errors.New("invalid force level")
	ErrInvalidCooldown      = errors.New("invalid cooldown")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidMenuItem      = errors.New("invalid menu item")
	ErrInvalidRecipients    = errors.New("invalid recipients")
	ErrInvalidServiceConfig = errors.New("invalid service config")
	ErrInvalidTable         = errors.New("invalid table")

	ErrMissingColumn = errors.New("missing required column")
	ErrUnknownTable  = errors.New("unknown table")
	ErrStoreConfig   = errors.New("store misconfigured")

	ErrTransientStore = errors.New("transient store error")
	ErrRateLimited    = errors.New("store rate limited")

	ErrRunInProgress = errors.New("run already in progress")
)

// IsTransient reports whether a store error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransientStore)
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
