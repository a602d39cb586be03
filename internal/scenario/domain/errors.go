package domain

import "errors"

var (
	// ErrInvalidLeakage is returned when a leakage label is not tight/leaky.
	ErrInvalidLeakage = errors.New("scenario: invalid leakage")
	// ErrInvalidFilterType is returned when a filter label is unsupported.
	ErrInvalidFilterType = errors.New("scenario: invalid filter type")
	// ErrInvalidMode is returned when an operating mode label is unsupported.
	ErrInvalidMode = errors.New("scenario: invalid mode")
	// ErrMissingColumn is returned when a required input column is absent.
	ErrMissingColumn = errors.New("scenario: missing required column")
	// ErrInconsistentBaseline is returned when mode and filter disagree about being baseline.
	ErrInconsistentBaseline = errors.New("scenario: baseline mode and baseline filter must coincide")
	// ErrDuplicateRun is returned when two rows share location/leakage/filter/mode.
	ErrDuplicateRun = errors.New("scenario: duplicate run")
	// ErrRunNotFound is returned when a keyed run is absent.
	ErrRunNotFound = errors.New("scenario: run not found")
	// ErrSeriesLengthMismatch is returned when paired hourly series differ in length.
	ErrSeriesLengthMismatch = errors.New("scenario: series length mismatch")
)
