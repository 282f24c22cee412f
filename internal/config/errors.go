package config

import (
	"errors"
)

// Sentinel kinds returned by Load and Validate.
var (
	// ErrInvalidConfig marks a value that failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrLoadConfig marks an unreadable or malformed config file.
	ErrLoadConfig = errors.New("loading configuration")
)
