package domain

import "errors"

var (
	// ErrDuplicateID is returned when registering an id that is already live.
	ErrDuplicateID = errors.New("artifact id already registered")

	// ErrNotFound is returned by registry lookups for absent ids. Callers
	// treat it as a normal outcome, not a failure.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidID marks ids that are malformed or fail path validation.
	ErrInvalidID = errors.New("invalid artifact id")

	// ErrConversionFailed means the conversion engine errored or exited
	// nonzero.
	ErrConversionFailed = errors.New("conversion failed")

	// ErrConversionIncomplete means the engine reported success but left no
	// output file behind.
	ErrConversionIncomplete = errors.New("conversion produced no output file")

	// ErrSourceMissing means the source file disappeared before the engine
	// was invoked.
	ErrSourceMissing = errors.New("source file missing")

	// ErrUploadTooLarge marks uploads exceeding the configured byte cap.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")
)
