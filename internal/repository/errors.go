package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict covers unique violations and transactions the database
	// refused to serialize.
	ErrConflict = errors.New("conflict")
)
