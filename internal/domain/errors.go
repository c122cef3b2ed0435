package domain

import "errors"

var (
	// ErrValidation marks a malformed or incomplete request, rejected
	// before anything is persisted.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a lookup for a transaction that does not exist.
	ErrNotFound = errors.New("transaction not found")
)
