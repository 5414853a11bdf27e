package otp

import "errors"

var (
	ErrFailedToGenerateSecret = errors.New("failed to generate secret")
	ErrInvalidSecretEncoding  = errors.New("invalid secret encoding")
	ErrMissingSecret          = errors.New("missing secret")
	ErrMissingAccountName     = errors.New("missing account name")
	ErrMissingIssuer          = errors.New("missing issuer")
)
