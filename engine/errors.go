package engine

import "errors"

var (
	// ErrProtected is returned when an action targets a protected process.
	ErrProtected = errors.New("process is protected")
	// ErrConfirmationRequired is returned when a destructive action lacks confirmation.
	ErrConfirmationRequired = errors.New("confirmation required")
	// ErrInvalidConfiguration marks malformed rules or out-of-range input.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
