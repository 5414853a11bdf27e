package attemptlimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/authkit/twofactor/pkg/attemptlimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_IncrementIfAllowed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := attemptlimit.NewMemoryStore()
	t.Cleanup(store.Close)

	now := time.Unix(1_700_000_000, 0)
	policy := attemptlimit.LockPolicy{Threshold: 2, Base: time.Minute, Max: time.Hour}

	count, lockedUntil, recorded, err := store.IncrementIfAllowed(ctx, "k", now, time.Minute, policy)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.EqualValues(t, 1, count)
	assert.True(t, lockedUntil.IsZero())

	count, lockedUntil, recorded, err = store.IncrementIfAllowed(ctx, "k", now, time.Minute, policy)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, now.Add(time.Minute), lockedUntil)

	// While locked, nothing is recorded.
	_, lockedUntil, recorded, err = store.IncrementIfAllowed(ctx, "k", now.Add(30*time.Second), time.Minute, policy)
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, now.Add(time.Minute), lockedUntil)
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := attemptlimit.NewMemoryStore()
	t.Cleanup(store.Close)

	now := time.Unix(1_700_000_000, 0)
	policy := attemptlimit.LockPolicy{Threshold: 10, Base: time.Minute, Max: time.Hour}

	_, _, _, err := store.IncrementIfAllowed(ctx, "stale", now, time.Minute, policy)
	require.NoError(t, err)

	require.NoError(t, store.DeleteExpired(ctx, now.Add(24*time.Hour)))

	count, _, err := store.Peek(ctx, "stale", now.Add(24*time.Hour), time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_DeleteExpiredKeepsLiveWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := attemptlimit.NewMemoryStore()
	t.Cleanup(store.Close)

	now := time.Unix(1_700_000_000, 0)
	window := 30 * time.Minute
	policy := attemptlimit.LockPolicy{Threshold: 10, Base: time.Minute, Max: time.Hour}

	for range 2 {
		_, _, _, err := store.IncrementIfAllowed(ctx, "k", now, window, policy)
		require.NoError(t, err)
	}

	// The janitor must honor the window the failures were recorded under,
	// not some fixed default shorter than it.
	require.NoError(t, store.DeleteExpired(ctx, now.Add(11*time.Minute)))

	count, _, err := store.Peek(ctx, "k", now.Add(11*time.Minute), window)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	// Once the window has fully rolled past, the entry is dropped.
	require.NoError(t, store.DeleteExpired(ctx, now.Add(window+time.Minute)))

	count, _, err = store.Peek(ctx, "k", now.Add(window+time.Minute), window)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_ContextCancellation(t *testing.T) {
	t.Parallel()
	store := attemptlimit.NewMemoryStore()
	t.Cleanup(store.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, _, err := store.IncrementIfAllowed(ctx, "k", time.Now(), time.Minute, attemptlimit.LockPolicy{Threshold: 1, Base: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
}
