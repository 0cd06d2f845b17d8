package service

import "errors"

var (
	// ErrAppNotFound indicates the requested app name matched nothing,
	// even with partial matching. The wrapping message carries the
	// closest candidates when any exist.
	ErrAppNotFound = errors.New("app not found")
)
