package ml

import "errors"

var (
	// ErrModelUnavailable is returned when no model bundle is loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrConfidenceUnsupported is returned by PredictProba when the loaded
	// model carries no class distribution information.
	ErrConfidenceUnsupported = errors.New("confidence estimates unsupported")
)
