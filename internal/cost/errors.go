package cost

import "errors"

var (
	// ErrLengthMismatch is returned when baseline and intervention series differ in length.
	ErrLengthMismatch = errors.New("cost: baseline/intervention length mismatch")
	// ErrInvalidPolicy is returned for an unknown zero-baseline policy.
	ErrInvalidPolicy = errors.New("cost: invalid zero-baseline policy")
	// ErrEmptyTable is returned when there is nothing to analyse.
	ErrEmptyTable = errors.New("cost: empty summary table")
)
