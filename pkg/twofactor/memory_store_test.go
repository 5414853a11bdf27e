package twofactor_test

import (
	"context"
	"testing"
	"time"

	"github.com/authkit/twofactor/pkg/backupcode"
	"github.com/authkit/twofactor/pkg/twofactor"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingFixture(identityID string, createdAt time.Time) *twofactor.PendingSetup {
	return &twofactor.PendingSetup{
		IdentityID: identityID,
		Secret:     []byte("candidate-secret"),
		Digits:     6,
		Period:     30,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(10 * time.Minute),
	}
}

func credentialFixture(identityID string, at time.Time) *twofactor.Credential {
	return &twofactor.Credential{
		ID:         uuid.New(),
		IdentityID: identityID,
		Secret:     []byte("candidate-secret"),
		State:      twofactor.StateEnabled,
		Digits:     6,
		Period:     30,
		CreatedAt:  at,
	}
}

func TestMemoryStore_Credentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := twofactor.NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)

	_, err := store.GetCredential(ctx, "alice")
	require.ErrorIs(t, err, twofactor.ErrCredentialNotFound)

	setup := pendingFixture("alice", now)
	require.NoError(t, store.SavePendingSetup(ctx, setup))

	cred := credentialFixture("alice", now)
	require.NoError(t, store.PromotePendingSetup(ctx, "alice", setup.CreatedAt, cred, nil))

	got, err := store.GetCredential(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, cred.ID, got.ID)
	assert.Equal(t, twofactor.StateEnabled, got.State)

	// RecordVerified only moves the step cursor forward.
	require.NoError(t, store.RecordVerified(ctx, cred.ID, now, 100))
	require.NoError(t, store.RecordVerified(ctx, cred.ID, now.Add(time.Minute), 50))
	got, err = store.GetCredential(ctx, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.LastUsedStep)
	assert.Equal(t, now.Add(time.Minute), got.LastVerifiedAt)

	require.NoError(t, store.DeleteCredential(ctx, "alice"))
	_, err = store.GetCredential(ctx, "alice")
	assert.ErrorIs(t, err, twofactor.ErrCredentialNotFound)
}

func TestMemoryStore_PromoteRequiresCurrentSetup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := twofactor.NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)

	first := pendingFixture("alice", now)
	require.NoError(t, store.SavePendingSetup(ctx, first))

	// A newer setup replaces the one the caller read.
	second := pendingFixture("alice", now.Add(time.Minute))
	require.NoError(t, store.SavePendingSetup(ctx, second))

	cred := credentialFixture("alice", now)
	err := store.PromotePendingSetup(ctx, "alice", first.CreatedAt, cred, nil)
	require.ErrorIs(t, err, twofactor.ErrPendingSetupNotFound,
		"promoting a superseded setup must fail")

	// The current setup still promotes.
	require.NoError(t, store.PromotePendingSetup(ctx, "alice", second.CreatedAt, cred, nil))
	_, err = store.GetPendingSetup(ctx, "alice")
	assert.ErrorIs(t, err, twofactor.ErrPendingSetupNotFound)
}

func TestMemoryStore_PromoteReplacesOldCredential(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := twofactor.NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)

	setup := pendingFixture("alice", now)
	require.NoError(t, store.SavePendingSetup(ctx, setup))
	old := credentialFixture("alice", now)
	oldHash, err := backupcode.Hash("AAAAA-AAAAA")
	require.NoError(t, err)
	require.NoError(t, store.PromotePendingSetup(ctx, "alice", setup.CreatedAt, old, [][]byte{oldHash}))

	setup = pendingFixture("alice", now.Add(time.Hour))
	require.NoError(t, store.SavePendingSetup(ctx, setup))
	fresh := credentialFixture("alice", now.Add(time.Hour))
	require.NoError(t, store.PromotePendingSetup(ctx, "alice", setup.CreatedAt, fresh, nil))

	got, err := store.GetCredential(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)

	// Backup codes tied to the replaced credential are gone with it.
	count, err := store.CountUnusedBackupCodes(ctx, old.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_BackupCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := twofactor.NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)

	codes := []string{"ABCDE-FGHJK", "MNPQR-STUVW"}
	hashes := make([][]byte, len(codes))
	for i, c := range codes {
		h, err := backupcode.Hash(c)
		require.NoError(t, err)
		hashes[i] = h
	}

	setup := pendingFixture("alice", now)
	require.NoError(t, store.SavePendingSetup(ctx, setup))
	cred := credentialFixture("alice", now)
	require.NoError(t, store.PromotePendingSetup(ctx, "alice", setup.CreatedAt, cred, hashes))

	count, err := store.CountUnusedBackupCodes(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Lowercase and dashless input still matches; consumption is one-shot.
	ok, err := store.ConsumeBackupCode(ctx, cred.ID, "abcdefghjk", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ConsumeBackupCode(ctx, cred.ID, codes[0], now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ConsumeBackupCode(ctx, cred.ID, "XXXXX-XXXXX", now)
	require.NoError(t, err)
	assert.False(t, ok)

	count, err = store.CountUnusedBackupCodes(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Replacing restores a full batch and kills the rest of the old one.
	newHash, err := backupcode.Hash("ZZZZZ-ZZZZZ")
	require.NoError(t, err)
	require.NoError(t, store.ReplaceBackupCodes(ctx, cred.ID, [][]byte{newHash}))

	ok, err = store.ConsumeBackupCode(ctx, cred.ID, codes[1], now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.ConsumeBackupCode(ctx, cred.ID, "ZZZZZ-ZZZZZ", now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_DeleteExpiredPendingSetups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := twofactor.NewMemoryStore()
	now := time.Unix(1_700_000_000, 0)

	require.NoError(t, store.SavePendingSetup(ctx, pendingFixture("expired", now.Add(-time.Hour))))
	require.NoError(t, store.SavePendingSetup(ctx, pendingFixture("live", now)))

	removed, err := store.DeleteExpiredPendingSetups(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetPendingSetup(ctx, "expired")
	assert.ErrorIs(t, err, twofactor.ErrPendingSetupNotFound)
	_, err = store.GetPendingSetup(ctx, "live")
	assert.NoError(t, err)
}
