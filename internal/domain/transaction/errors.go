package transaction

import "errors"

var (
	ErrNotFound        = errors.New("transaction not found")
	ErrAlreadyTerminal = errors.New("transaction already in terminal state")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
)
