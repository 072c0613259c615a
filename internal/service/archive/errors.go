package archive

import "errors"

// Sentinel errors for the archive service layer.
var (
	ErrNotFound        = errors.New("newsletter not found")
	ErrInvalidDocument = errors.New("invalid newsletter document")
)
