package backupcode

import "errors"

var (
	ErrInvalidCodeCount = errors.New("invalid backup code count, must be greater than 0")
	ErrGenerationFailed = errors.New("failed to generate backup code")
	ErrHashingFailed    = errors.New("failed to hash backup code")
	ErrEmptyCode        = errors.New("backup code is empty")
)
