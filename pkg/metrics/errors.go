package metrics

import (
	"errors"
)

// Sentinel errors for the metrics layer.
var (
	ErrObserveFailed = errors.New("metrics observe failed")
)
