package wallet

import "errors"

// Service errors
var (
	ErrInvalidTransfer = errors.New("invalid transfer request")
	ErrInvalidAccount  = errors.New("invalid account")
	ErrAccountNotFound = errors.New("account not found")
	ErrOwnerConflict   = errors.New("owner already has a different account")
)
