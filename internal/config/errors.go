package config

import (
	"errors"
)

// Sentinel errors for configuration loading and validation, matchable
// with errors.Is from callers.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
