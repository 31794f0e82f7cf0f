// Package generator provides stylize.Generator backends.
package generator

import "errors"

// Sentinel errors for generator backends.
var (
	// Configuration errors
	ErrUnknownBackend = errors.New("generator: unknown backend")
	ErrMissingAPIKey  = errors.New("generator: API key is required")
	ErrNoResolver     = errors.New("generator: no model resolver configured")

	// Runtime errors
	ErrBackendUnavailable = errors.New("generator: backend not compiled into this binary")
	ErrClosed             = errors.New("generator: generator is closed")
	ErrNoImageReturned    = errors.New("generator: remote service returned no image")
	ErrShapeMismatch      = errors.New("generator: tensor shape mismatch")
)
