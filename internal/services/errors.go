package services

import "errors"

// Business-rule failures surfaced verbatim to the caller. Anything not
// matching one of these is treated as an infrastructure error.
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAlreadyCancelled  = errors.New("transaction already cancelled")
	ErrConflict          = errors.New("concurrent update conflict")
)
