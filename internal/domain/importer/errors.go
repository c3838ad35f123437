package importer

import "errors"

var (
	// ErrInvalidCredentials indicates the provider rejected the API key.
	ErrInvalidCredentials = errors.New("provider rejected credentials")
	// ErrUnknownMethod indicates an import request with no matching provider.
	ErrUnknownMethod = errors.New("unknown import method")
	// ErrMissingAPIKey indicates an API-based import without a key.
	ErrMissingAPIKey = errors.New("api key required")
	// ErrMissingFile indicates a file import without upload data.
	ErrMissingFile = errors.New("file data required")
	// ErrUpstream indicates a non-day-scoped third-party API failure.
	ErrUpstream = errors.New("upstream provider error")
)
