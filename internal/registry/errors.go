package registry

import "errors"

// Sentinel kinds for registry errors.
var (
	// ErrDatasetNotFound marks an unknown dataset identifier. The
	// message carries the valid identifiers so callers can self-correct.
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrTableNotFound marks an unknown table within a dataset.
	ErrTableNotFound = errors.New("table not found")
)
