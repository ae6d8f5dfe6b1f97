package store

import "errors"

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("store: required parameter is nil")

	// ErrReadOnly indicates a write inside a read-only transaction.
	ErrReadOnly = errors.New("store: transaction is read-only")
)
