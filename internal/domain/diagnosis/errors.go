package diagnosis

import "errors"

// ErrUnknownClass means a class has no reference data. It indicates a
// misconfigured class set, not a bad request.
var ErrUnknownClass = errors.New("unknown diagnosis class")

// ErrQuotaExceeded indicates a hosted model provider rejected the call for quota reasons.
var ErrQuotaExceeded = errors.New("classifier quota exceeded")
