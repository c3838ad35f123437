package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique-key constraint rejects a write
	ErrConflict = errors.New("conflict: entity already exists")
)
