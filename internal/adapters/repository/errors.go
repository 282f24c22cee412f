package repository

import "errors"

// Sentinel kinds for repository errors. Missing records and driver failures
// are reported with model.ErrNotFound and model.ErrStorage.
var (
	ErrClosed        = errors.New("store closed")
	ErrUnknownDriver = errors.New("unknown store driver")
)
