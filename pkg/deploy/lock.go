package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/state"
	"github.com/terrazzo-io/tzctl/pkg/state/types"
)

// LockManager acquires and releases the advisory per-environment lock held
// inside each environment's runtime state. Locks have no heartbeat: a stuck
// holder's lock only clears through the staleness override or an explicit
// force-unlock.
type LockManager struct {
	state state.Manager
}

// NewLockManager creates a lock manager over the given state manager.
func NewLockManager(mgr state.Manager) *LockManager {
	return &LockManager{state: mgr}
}

// Acquire takes the environment's lock for runID. When another run holds the
// lock, the error depends on the lock's age: past staleThreshold the caller
// gets LOCK_STALE (remediable by force-unlock), otherwise LOCK_TIMEOUT
// (remediable by waiting out the policy window). The timeout values shape the
// second caller's error; they never preempt the holder.
func (l *LockManager) Acquire(ctx context.Context, project, envID, runID string, now time.Time, lockTimeout, staleThreshold time.Duration) error {
	_, err := l.state.UpdateEnvironment(ctx, project, envID, func(env *types.EnvironmentRuntimeState) error {
		if env.ActiveLock != nil {
			age := now.Sub(env.ActiveLock.AcquiredAt)
			if age > staleThreshold {
				return errors.Precondition(errors.ErrCodeLockStale,
					fmt.Sprintf("environment %q lock held by run %s is stale (age %s exceeds %s)",
						envID, env.ActiveLock.RunID, age.Round(time.Second), staleThreshold),
					"force-unlock the environment, then re-plan before applying").
					WithDetail("holder_run_id", env.ActiveLock.RunID).
					WithDetail("lock_age", age.String())
			}
			return errors.Precondition(errors.ErrCodeLockTimeout,
				fmt.Sprintf("environment %q is locked by run %s (age %s)",
					envID, env.ActiveLock.RunID, age.Round(time.Second)),
				fmt.Sprintf("retry after the lock times out (policy window %s)", lockTimeout)).
				WithDetail("holder_run_id", env.ActiveLock.RunID).
				WithDetail("lock_age", age.String()).
				WithDetail("lock_timeout", lockTimeout.String())
		}

		env.ActiveLock = &types.ActiveLock{RunID: runID, AcquiredAt: now}
		return nil
	})
	return err
}

// Release clears the environment's lock unconditionally. Releasing an
// unlocked environment is a no-op.
func (l *LockManager) Release(ctx context.Context, project, envID string) error {
	_, err := l.state.UpdateEnvironment(ctx, project, envID, func(env *types.EnvironmentRuntimeState) error {
		env.ActiveLock = nil
		return nil
	})
	return err
}

// ForceUnlock clears the lock and stamps lastForceUnlockAt. The stamp makes
// the next apply demand a plan newer than the takeover, so nobody applies
// against a world view from before the forced release.
func (l *LockManager) ForceUnlock(ctx context.Context, project, envID string, now time.Time) error {
	_, err := l.state.UpdateEnvironment(ctx, project, envID, func(env *types.EnvironmentRuntimeState) error {
		env.ActiveLock = nil
		t := now
		env.LastForceUnlockAt = &t
		return nil
	})
	return err
}
