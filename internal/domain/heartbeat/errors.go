package heartbeat

import "errors"

var (
	// ErrBatchTooLarge indicates an ingest call exceeded the batch bound.
	ErrBatchTooLarge = errors.New("heartbeat batch exceeds maximum size")
	// ErrInvalidInput indicates a heartbeat without a timestamp.
	ErrInvalidInput = errors.New("invalid heartbeat input")
)
