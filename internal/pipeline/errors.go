package pipeline

import "errors"

// Request failure taxonomy. A failure aborts only its own request; other
// in-flight requests and their vault entries are untouched. Error payloads
// carry kind and trace id, never raw PII.
var (
	// ErrEmptyInput rejects blank input before any PII scan runs.
	ErrEmptyInput = errors.New("input text is empty")

	// ErrInputTooLarge rejects oversized input before any PII scan runs.
	ErrInputTooLarge = errors.New("input text exceeds maximum size")

	// ErrDetectionFailure means the entity detector was unavailable. The
	// request fails whole: processing unredacted text is never an option.
	ErrDetectionFailure = errors.New("entity detection unavailable")

	// ErrClassificationFailure means neither classifier tier produced a
	// category. The request fails; there is no silent default.
	ErrClassificationFailure = errors.New("classification unavailable")

	// ErrProcessingTimeout means the request hit its overall deadline.
	// The vault entry is still cleaned up.
	ErrProcessingTimeout = errors.New("processing deadline exceeded")
)
