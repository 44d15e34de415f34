package tasks

import "errors"

// Sentinel errors for template and generation operations.
var (
	ErrInvalidRound       = errors.New("round must be 1 or 2")
	ErrRoundNotConfigured = errors.New("round not configured for template")
	ErrUnknownTemplate    = errors.New("unknown template")
	ErrInvalidTemplate    = errors.New("invalid template definition")
	ErrNoTemplates        = errors.New("no templates registered")
)
