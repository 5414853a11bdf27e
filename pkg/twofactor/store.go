package twofactor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable backend for credentials, pending setups, and backup
// codes. Implementations must honor context deadlines on every call and make
// the two read-modify-write operations (PromotePendingSetup and
// ConsumeBackupCode) atomic: a transaction, an optimistic version check, or a
// row-level lock all qualify. Two concurrent requests must never both consume
// the same backup code, and a promotion must never confirm a pending setup
// that has been replaced since it was read.
type Store interface {
	// GetCredential returns the credential for an identity, or
	// ErrCredentialNotFound.
	GetCredential(ctx context.Context, identityID string) (*Credential, error)

	// DeleteCredential erases the credential and all of its backup codes.
	DeleteCredential(ctx context.Context, identityID string) error

	// RecordVerified persists the verification timestamp and advances the
	// anti-replay cursor. The cursor only moves forward: implementations keep
	// the larger of the stored and supplied step.
	RecordVerified(ctx context.Context, credentialID uuid.UUID, at time.Time, step int64) error

	// SavePendingSetup stores a pending setup, replacing any existing one for
	// the same identity.
	SavePendingSetup(ctx context.Context, setup *PendingSetup) error

	// GetPendingSetup returns the live pending setup for an identity, or
	// ErrPendingSetupNotFound.
	GetPendingSetup(ctx context.Context, identityID string) (*PendingSetup, error)

	// PromotePendingSetup atomically confirms the pending setup created at
	// setupCreatedAt: it replaces any existing credential for the identity
	// with cred, installs the backup code hashes, and deletes the pending
	// row. If the pending setup is gone or was superseded by a newer one, it
	// returns ErrPendingSetupNotFound and changes nothing.
	PromotePendingSetup(ctx context.Context, identityID string, setupCreatedAt time.Time, cred *Credential, backupHashes [][]byte) error

	// DeletePendingSetup discards the pending setup for an identity, if any.
	DeletePendingSetup(ctx context.Context, identityID string) error

	// DeleteExpiredPendingSetups drops pending setups whose confirmation
	// window ended before now, returning how many were removed.
	DeleteExpiredPendingSetups(ctx context.Context, now time.Time) (int, error)

	// ConsumeBackupCode matches submitted against the credential's unused
	// backup codes and, on a match, marks that code used in the same atomic
	// operation. Returns false when no unused code matches.
	ConsumeBackupCode(ctx context.Context, credentialID uuid.UUID, submitted string, at time.Time) (bool, error)

	// CountUnusedBackupCodes returns how many recovery codes remain.
	CountUnusedBackupCodes(ctx context.Context, credentialID uuid.UUID) (int, error)

	// ReplaceBackupCodes invalidates every existing backup code for the
	// credential and installs a fresh batch of hashes in one atomic operation.
	ReplaceBackupCodes(ctx context.Context, credentialID uuid.UUID, hashes [][]byte) error
}
