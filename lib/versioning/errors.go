package versioning

import "github.com/cockroachdb/errors"

// ErrMalformedVersion is returned (possibly wrapped) if an encoded vector clock is corrupt
var ErrMalformedVersion = errors.New("malformed version")

// ErrClockOverflow is returned if a clock cannot be incremented or encoded because a
// counter or the number of entries reached its limit
var ErrClockOverflow = errors.New("vector clock overflow")
