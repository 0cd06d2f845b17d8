package builder

import "errors"

// Sentinel kinds for builder errors.
var (
	// ErrInvalidFilter marks a filter value outside the canonical sets.
	ErrInvalidFilter = errors.New("invalid filter value")
)
