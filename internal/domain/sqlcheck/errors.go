package sqlcheck

import "errors"

// Sentinel kinds for validation errors.
var (
	// ErrValidation marks a statement that was rejected before any
	// connection was acquired.
	ErrValidation = errors.New("sql validation failed")
)
