package domain

import "errors"

var (
	// ErrValidation covers missing or malformed input fields.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a tracking code or user id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict signals a uniqueness violation, e.g. a duplicate tracking code.
	ErrConflict = errors.New("conflict")
	// ErrInvalidDriver signals an assigned user id that is not a driver.
	ErrInvalidDriver = errors.New("invalid driver")
	// ErrInvalidDate signals an unparsable report window bound.
	ErrInvalidDate = errors.New("invalid date format")
	// ErrAggregation wraps unexpected faults during report computation.
	ErrAggregation = errors.New("report aggregation failed")
)
