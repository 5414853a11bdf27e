package twofactor

import (
	"errors"
	"fmt"
	"time"
)

// Definitive outcomes. Only ErrStoreUnavailable is worth retrying; everything
// else is final for the call that produced it.
var (
	ErrIdentityRequired     = errors.New("identity id is required")
	ErrNoPendingSetup       = errors.New("no pending setup to confirm")
	ErrSetupExpired         = errors.New("pending setup has expired")
	ErrInvalidCode          = errors.New("invalid code")
	ErrLocked               = errors.New("too many attempts, verification locked")
	ErrNotEnabled           = errors.New("second factor is not enabled")
	ErrUnauthorized         = errors.New("reauthentication required")
	ErrStoreUnavailable     = errors.New("durable store unavailable")
	ErrReauthNotConfigured  = errors.New("no reauthentication verifier configured")
	ErrCipherKeyRequired    = errors.New("encryption key must be 32 bytes")
	ErrCiphertextTooShort   = errors.New("ciphertext too short")
	ErrEncryptionKeyInvalid = errors.New("invalid encryption key")
)

// Store-level sentinels. Implementations return these; the service translates
// them into the caller-facing outcomes above.
var (
	ErrCredentialNotFound   = errors.New("credential not found")
	ErrPendingSetupNotFound = errors.New("pending setup not found")
)

// InvalidCodeError is ErrInvalidCode with the attempt budget attached, so a
// client UI can tell the user how many guesses remain. It never discloses why
// the code was wrong.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.AttemptsRemaining)
}

func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

// LockedError is ErrLocked with the mandatory retry-after value, so legitimate
// users are never left guessing when they may try again.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

// transient wraps storage failures so callers can distinguish a retriable
// outage from a definitive verification outcome.
func transient(err error) error {
	return errors.Join(ErrStoreUnavailable, err)
}
