package attemptlimit

import "errors"

var (
	ErrStoreRequired = errors.New("store is required")
	ErrInvalidLimit  = errors.New("invalid attempt limit")
	ErrInvalidWindow = errors.New("invalid window")
	ErrKeyRequired   = errors.New("key is required")
)
