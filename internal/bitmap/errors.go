package bitmap

import "errors"

var (
	// ErrUnavailable is returned when a native buffer or destination slice
	// is missing. Nothing is written when it is returned.
	ErrUnavailable = errors.New("bitmap: buffer unavailable")
	// ErrPrecondition marks a caller error: a length that disagrees with the
	// declared dimensions, or an invalid downsample factor.
	ErrPrecondition = errors.New("bitmap: precondition violated")
)
