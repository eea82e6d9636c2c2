package job

import "errors"

// Error taxonomy per spec §7: Validation and Conflict are reported
// synchronously to the caller with no state change; NotFound is a lookup
// miss; Internal covers store/invariant failures. Transient and Terminal
// classification of capability failures lives in the executor, which
// wraps one of these where applicable.
var (
	ErrValidation = errors.New("validation")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrInternal   = errors.New("internal")
)
