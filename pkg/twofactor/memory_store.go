package twofactor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/authkit/twofactor/pkg/backupcode"
)

// MemoryStore is an in-process Store for tests and single-instance
// deployments. One mutex guards every record, which trivially satisfies the
// atomicity the Store contract demands from ConsumeBackupCode and
// PromotePendingSetup.
type MemoryStore struct {
	mu          sync.Mutex
	credentials map[string]*Credential   // keyed by identity id
	pending     map[string]*PendingSetup // keyed by identity id
	backupCodes map[uuid.UUID][]*BackupCode
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]*Credential),
		pending:     make(map[string]*PendingSetup),
		backupCodes: make(map[uuid.UUID][]*BackupCode),
	}
}

func (s *MemoryStore) GetCredential(ctx context.Context, identityID string) (*Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cred, exists := s.credentials[identityID]
	if !exists {
		return nil, ErrCredentialNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *MemoryStore) DeleteCredential(ctx context.Context, identityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cred, exists := s.credentials[identityID]; exists {
		delete(s.backupCodes, cred.ID)
		delete(s.credentials, identityID)
	}
	return nil
}

func (s *MemoryStore) RecordVerified(ctx context.Context, credentialID uuid.UUID, at time.Time, step int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.credentials {
		if cred.ID == credentialID {
			cred.LastVerifiedAt = at
			if step > cred.LastUsedStep {
				cred.LastUsedStep = step
			}
			return nil
		}
	}
	return ErrCredentialNotFound
}

func (s *MemoryStore) SavePendingSetup(ctx context.Context, setup *PendingSetup) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *setup
	s.pending[setup.IdentityID] = &copied
	return nil
}

func (s *MemoryStore) GetPendingSetup(ctx context.Context, identityID string) (*PendingSetup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	setup, exists := s.pending[identityID]
	if !exists {
		return nil, ErrPendingSetupNotFound
	}
	copied := *setup
	return &copied, nil
}

func (s *MemoryStore) PromotePendingSetup(ctx context.Context, identityID string, setupCreatedAt time.Time, cred *Credential, backupHashes [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	setup, exists := s.pending[identityID]
	if !exists || !setup.CreatedAt.Equal(setupCreatedAt) {
		// Superseded by a newer setup (or already gone): the caller validated
		// against a secret that is no longer the authoritative pending one.
		return ErrPendingSetupNotFound
	}

	if old, had := s.credentials[identityID]; had {
		delete(s.backupCodes, old.ID)
	}

	copied := *cred
	s.credentials[identityID] = &copied
	s.backupCodes[cred.ID] = newBackupCodeRows(cred.ID, backupHashes, cred.ConfirmedAt)
	delete(s.pending, identityID)
	return nil
}

func (s *MemoryStore) DeletePendingSetup(ctx context.Context, identityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, identityID)
	return nil
}

func (s *MemoryStore) DeleteExpiredPendingSetups(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for identityID, setup := range s.pending {
		if setup.Expired(now) {
			delete(s.pending, identityID)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) ConsumeBackupCode(ctx context.Context, credentialID uuid.UUID, submitted string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.backupCodes[credentialID] {
		if row.Used {
			continue
		}
		if backupcode.Verify(submitted, row.Hash) {
			row.Used = true
			row.UsedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CountUnusedBackupCodes(ctx context.Context, credentialID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, row := range s.backupCodes[credentialID] {
		if !row.Used {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ReplaceBackupCodes(ctx context.Context, credentialID uuid.UUID, hashes [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.backupCodes[credentialID] = newBackupCodeRows(credentialID, hashes, time.Now())
	return nil
}

func newBackupCodeRows(credentialID uuid.UUID, hashes [][]byte, createdAt time.Time) []*BackupCode {
	rows := make([]*BackupCode, len(hashes))
	for i, hash := range hashes {
		rows[i] = &BackupCode{
			ID:           uuid.New(),
			CredentialID: credentialID,
			Hash:         hash,
			CreatedAt:    createdAt,
		}
	}
	return rows
}
