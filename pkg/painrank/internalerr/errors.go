package internalerr

import "errors"

// Sentinel errors for common cases
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDuplicate        = errors.New("duplicate entry")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrBudgetExhausted  = errors.New("monthly budget exhausted")
	ErrVersionConflict  = errors.New("vocabulary version conflict")
	ErrOracleFailure    = errors.New("oracle call failed")
)
