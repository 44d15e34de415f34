package controlplane

import "errors"

// Sentinel errors for control plane operations.
var (
	ErrValidation   = errors.New("invalid request")
	ErrUnauthorized = errors.New("invalid secret")
	ErrRateLimited  = errors.New("rate limit exceeded")
	ErrNotFound     = errors.New("resource not found")
	ErrTaskNotFound = errors.New("task not found")
	ErrUnavailable  = errors.New("capability not available")
)
