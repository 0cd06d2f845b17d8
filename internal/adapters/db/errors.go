package db

import "errors"

// Sentinel kinds for execution errors.
var (
	// ErrPoolExhausted means no connection became free within the
	// configured acquire wait.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrQueryTimeout means the statement timeout expired; the
	// connection is discarded, and the caller may retry.
	ErrQueryTimeout = errors.New("query timeout")
	// ErrQueryExecution wraps any other driver-level failure with a
	// sanitized message.
	ErrQueryExecution = errors.New("query execution failed")
)
