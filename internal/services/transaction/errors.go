package transaction

import "errors"

// Service errors
var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInvalidRequest      = errors.New("invalid transfer request")
	ErrInvalidOutcome      = errors.New("invalid settlement outcome")
	ErrNotInitiated        = errors.New("transaction is not initiated")
)
