package twofactor

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a second-factor credential.
type State string

const (
	// StateDisabled means no second factor is active for the identity.
	// Represented by the absence of a credential row.
	StateDisabled State = "disabled"
	// StatePendingConfirmation means a setup was issued but not yet
	// confirmed. Represented by a PendingSetup row; a credential row is
	// only ever written once confirmed.
	StatePendingConfirmation State = "pending_confirmation"
	// StateEnabled means the second factor is active and verified. The only
	// state a persisted credential holds.
	StateEnabled State = "enabled"
)

// Credential is the durable second-factor record for one identity.
// Secret holds raw key material in memory; stores receive it encrypted when a
// SecretCipher is configured. It is never logged and never returned to callers
// after initial provisioning.
type Credential struct {
	ID         uuid.UUID
	IdentityID string
	Secret     []byte
	State      State

	// Digits and Period are fixed at provisioning time and never change for
	// the lifetime of the credential.
	Digits int
	Period int

	// LastUsedStep is the most recent TOTP counter consumed by a successful
	// verification. Codes for steps at or below it are rejected, so a code
	// cannot be replayed within its validity window.
	LastUsedStep int64

	CreatedAt      time.Time
	ConfirmedAt    time.Time
	LastVerifiedAt time.Time
}

// PendingSetup is the ephemeral record between Setup and Enable. It never
// outlives its confirmation window and is discarded, not merged, when a new
// Setup is issued for the same identity. Plaintext backup codes are returned
// from Setup exactly once and exist here only as hashes.
type PendingSetup struct {
	IdentityID       string
	Secret           []byte
	BackupCodeHashes [][]byte
	Digits           int
	Period           int
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the confirmation window has passed.
func (p *PendingSetup) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// BackupCode is one single-use recovery code row. Once Used flips to true the
// row is immutable and can never match again.
type BackupCode struct {
	ID           uuid.UUID
	CredentialID uuid.UUID
	Hash         []byte
	Used         bool
	UsedAt       time.Time
	CreatedAt    time.Time
}

// Method identifies which path satisfied a verification.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup"
)

// SetupResult carries everything the user needs to finish enrollment. The
// secret and backup codes appear here exactly once; they are not retrievable
// afterwards.
type SetupResult struct {
	// SecretKey is the Base32-encoded shared secret for manual entry.
	SecretKey string
	// ProvisioningURI is the otpauth:// URI to render as a QR code.
	ProvisioningURI string
	// BackupCodes is the plaintext recovery batch, shown exactly once.
	BackupCodes []string
	// ExpiresAt is when the pending setup stops being confirmable.
	ExpiresAt time.Time
}

// VerifyResult reports a successful verification.
type VerifyResult struct {
	// Method is which path matched: "totp" or "backup".
	Method Method
	// BackupCodesRemaining is the number of unused recovery codes left.
	BackupCodesRemaining int
	// LowBackupCodes is set when the remaining count has reached the warning
	// threshold and the user should regenerate a batch.
	LowBackupCodes bool
}
