package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/state"
	"github.com/terrazzo-io/tzctl/pkg/state/backend/local"
)

const (
	testLockTimeout    = 10 * time.Minute
	testStaleThreshold = time.Hour
)

func newTestState(t *testing.T) state.Manager {
	t.Helper()
	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	require.NoError(t, err)
	return state.NewManager(b)
}

func TestLockManager_AcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	mgr := newTestState(t)
	locks := NewLockManager(mgr)
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	require.NoError(t, locks.Acquire(ctx, "shop", "staging", "run-1", now, testLockTimeout, testStaleThreshold))

	st, err := mgr.GetEnvironment(ctx, "shop", "staging")
	require.NoError(t, err)
	require.NotNil(t, st.ActiveLock)
	assert.Equal(t, "run-1", st.ActiveLock.RunID)
	assert.Equal(t, now, st.ActiveLock.AcquiredAt)

	require.NoError(t, locks.Release(ctx, "shop", "staging"))

	st, err = mgr.GetEnvironment(ctx, "shop", "staging")
	require.NoError(t, err)
	assert.Nil(t, st.ActiveLock)
}

func TestLockManager_Contention(t *testing.T) {
	ctx := context.Background()
	mgr := newTestState(t)
	locks := NewLockManager(mgr)
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	require.NoError(t, locks.Acquire(ctx, "shop", "staging", "run-1", now, testLockTimeout, testStaleThreshold))

	// A second caller within the staleness window gets LOCK_TIMEOUT.
	err := locks.Acquire(ctx, "shop", "staging", "run-2", now.Add(time.Minute), testLockTimeout, testStaleThreshold)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLockTimeout))
	assert.Contains(t, errors.Remediation(err), "retry")

	// The holder is unchanged.
	st, err2 := mgr.GetEnvironment(ctx, "shop", "staging")
	require.NoError(t, err2)
	assert.Equal(t, "run-1", st.ActiveLock.RunID)
}

func TestLockManager_Stale(t *testing.T) {
	ctx := context.Background()
	mgr := newTestState(t)
	locks := NewLockManager(mgr)
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	require.NoError(t, locks.Acquire(ctx, "shop", "staging", "run-1", now, testLockTimeout, testStaleThreshold))

	// Past the staleness threshold the second caller is told to
	// force-unlock instead of waiting.
	err := locks.Acquire(ctx, "shop", "staging", "run-2", now.Add(2*time.Hour), testLockTimeout, testStaleThreshold)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLockStale))
	assert.Contains(t, errors.Remediation(err), "force-unlock")
}

func TestLockManager_ReleaseIdempotent(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager(newTestState(t))

	// Releasing an environment that was never locked is a no-op.
	assert.NoError(t, locks.Release(ctx, "shop", "staging"))
	assert.NoError(t, locks.Release(ctx, "shop", "staging"))
}

func TestLockManager_ForceUnlock(t *testing.T) {
	ctx := context.Background()
	mgr := newTestState(t)
	locks := NewLockManager(mgr)
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	require.NoError(t, locks.Acquire(ctx, "shop", "staging", "run-1", now, testLockTimeout, testStaleThreshold))

	unlockAt := now.Add(30 * time.Minute)
	require.NoError(t, locks.ForceUnlock(ctx, "shop", "staging", unlockAt))

	st, err := mgr.GetEnvironment(ctx, "shop", "staging")
	require.NoError(t, err)
	assert.Nil(t, st.ActiveLock)
	require.NotNil(t, st.LastForceUnlockAt)
	assert.Equal(t, unlockAt, *st.LastForceUnlockAt)

	// Force-unlocking an unlocked environment still stamps the time and
	// never errors.
	later := unlockAt.Add(time.Minute)
	require.NoError(t, locks.ForceUnlock(ctx, "shop", "staging", later))
	st, err = mgr.GetEnvironment(ctx, "shop", "staging")
	require.NoError(t, err)
	assert.Equal(t, later, *st.LastForceUnlockAt)
}
