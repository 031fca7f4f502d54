package contractintake

import "errors"

var (
	// ErrEmptyInput is returned when the source text is empty or
	// whitespace-only.
	ErrEmptyInput = errors.New("contractintake: input text is empty")

	// ErrSessionNotFound is returned when a session ID does not exist.
	ErrSessionNotFound = errors.New("contractintake: session not found")

	// ErrSessionTerminated is returned when answers are submitted after the
	// follow-up rounds have finished.
	ErrSessionTerminated = errors.New("contractintake: follow-up rounds already finished")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("contractintake: invalid configuration")

	// ErrExportUnavailable is returned when a requested export format has no
	// configured mapping or template.
	ErrExportUnavailable = errors.New("contractintake: export format not configured")
)
