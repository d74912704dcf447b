package deploy

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/provisioner"
	"github.com/terrazzo-io/tzctl/pkg/schema/template"
	"github.com/terrazzo-io/tzctl/pkg/state"
	"github.com/terrazzo-io/tzctl/pkg/state/types"
)

// Policy carries the orchestrator's timing rules. Timeout values govern how
// a second caller reacts to an existing lock, never how long the holder may
// run.
type Policy struct {
	// LockTimeout is the wait-it-out window reported with LOCK_TIMEOUT.
	LockTimeout time.Duration

	// StaleThreshold is the lock age past which contention reports
	// LOCK_STALE instead of LOCK_TIMEOUT.
	StaleThreshold time.Duration

	// ProdPlanMaxAge is how fresh a plan must be before applying to prod.
	ProdPlanMaxAge time.Duration

	// DriftExpiry, when non-zero, stops a recorded drift flag from gating
	// prod applies once the flagging plan is older than this. Zero means
	// drift never expires automatically.
	DriftExpiry time.Duration

	// HistoryRetention sets each run record's expiry horizon.
	HistoryRetention time.Duration
}

// DefaultPolicy returns the standard timing rules.
func DefaultPolicy() Policy {
	return Policy{
		LockTimeout:      10 * time.Minute,
		StaleThreshold:   time.Hour,
		ProdPlanMaxAge:   15 * time.Minute,
		DriftExpiry:      0,
		HistoryRetention: 90 * 24 * time.Hour,
	}
}

// withDefaults fills zero fields from DefaultPolicy. DriftExpiry stays
// as-given because zero is meaningful there.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.LockTimeout == 0 {
		p.LockTimeout = def.LockTimeout
	}
	if p.StaleThreshold == 0 {
		p.StaleThreshold = def.StaleThreshold
	}
	if p.ProdPlanMaxAge == 0 {
		p.ProdPlanMaxAge = def.ProdPlanMaxAge
	}
	if p.HistoryRetention == 0 {
		p.HistoryRetention = def.HistoryRetention
	}
	return p
}

// Options configures an Orchestrator.
type Options struct {
	State    state.Manager
	Template *template.Template
	Adapter  provisioner.Adapter
	Policy   Policy

	// ProjectPath is the project's root directory, passed to the adapter.
	ProjectPath string

	// Prepare resolves the workspace directory and driver inputs for an
	// environment before an adapter call. When nil, the conventional
	// workspace path is used with no inputs.
	Prepare func(ctx context.Context, envID string) (workspace string, inputs map[string]interface{}, err error)

	// Env is extra process environment for the adapter.
	Env map[string]string

	// Stdout/Stderr receive raw adapter output when non-nil.
	Stdout io.Writer
	Stderr io.Writer

	// Actor is recorded on run records.
	Actor string

	Logger zerolog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Orchestrator sequences plan, apply, destroy and report actions for one
// project, enforcing lock discipline, plan freshness and confirmation before
// touching the provisioning adapter. Every invocation appends exactly one
// run record, success or failure, and never leaves a lock held.
type Orchestrator struct {
	state    state.Manager
	template *template.Template
	adapter  provisioner.Adapter
	locks    *LockManager
	policy   Policy

	projectPath string
	prepare     func(ctx context.Context, envID string) (string, map[string]interface{}, error)
	env         map[string]string
	stdout      io.Writer
	stderr      io.Writer
	actor       string
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.State == nil {
		return nil, fmt.Errorf("state manager is required")
	}
	if opts.Template == nil {
		return nil, fmt.Errorf("deploy template is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("provisioning adapter is required")
	}

	o := &Orchestrator{
		state:       opts.State,
		template:    opts.Template,
		adapter:     opts.Adapter,
		locks:       NewLockManager(opts.State),
		policy:      opts.Policy.withDefaults(),
		projectPath: opts.ProjectPath,
		prepare:     opts.Prepare,
		env:         opts.Env,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
		actor:       opts.Actor,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if o.prepare == nil {
		o.prepare = func(ctx context.Context, envID string) (string, map[string]interface{}, error) {
			return filepath.Join(o.projectPath, ".tzctl", "workspaces", envID), nil, nil
		}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Locks exposes the lock manager for force-unlock surfaces.
func (o *Orchestrator) Locks() *LockManager {
	return o.locks
}

// PlanOutcome is the caller-facing result of a plan.
type PlanOutcome struct {
	RunID          string
	Summary        types.ChangeSummary
	Drift          bool
	PlannedChanges []provisioner.PlannedChange
	Warnings       []provisioner.Diagnostic
	Errors         []provisioner.Diagnostic
	Logs           []string
}

// ApplyOutcome is the caller-facing result of an apply.
type ApplyOutcome struct {
	RunID    string
	Status   types.EnvironmentStatus
	Summary  types.ChangeSummary
	Warnings []provisioner.Diagnostic
	Errors   []provisioner.Diagnostic
	Logs     []string
}

// DestroyOutcome is the caller-facing result of a destroy.
type DestroyOutcome struct {
	RunID    string
	Status   types.EnvironmentStatus
	Summary  types.ChangeSummary
	Warnings []provisioner.Diagnostic
	Errors   []provisioner.Diagnostic
	Logs     []string
}

// ReportOutcome is the caller-facing result of a report.
type ReportOutcome struct {
	RunID    string
	Status   types.EnvironmentStatus
	Drift    bool
	Warnings []provisioner.Diagnostic
	Errors   []provisioner.Diagnostic
	Logs     []string
}

// ApplyOptions carries the per-call apply flags.
type ApplyOptions struct {
	// AllowDrift acknowledges a drift flag when applying to prod.
	AllowDrift bool
}

// Plan previews the changes for an environment. The environment is locked
// for the duration of the adapter call; last-plan bookkeeping is updated on
// adapter success even when the plan itself reported errors.
func (o *Orchestrator) Plan(ctx context.Context, project, envID string) (*PlanOutcome, error) {
	if _, ok := o.template.Environment(envID); !ok {
		return nil, errors.NotFoundError("environment", envID)
	}

	runID := uuid.New().String()
	started := o.now().UTC()
	rec := o.newRecord(runID, envID, types.RunActionPlan, started)
	defer o.appendRecord(ctx, project, rec)

	o.logger.Info().Str("environment", envID).Str("run_id", runID).Str("action", "plan").Msg("starting plan")

	if err := o.locks.Acquire(ctx, project, envID, runID, started, o.policy.LockTimeout, o.policy.StaleThreshold); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}
	defer o.release(ctx, project, envID)

	req, err := o.request(ctx, envID, started)
	if err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	res, err := o.adapter.Plan(ctx, req)
	if err != nil {
		aerr := errors.AdapterError(o.adapter.Name(), "plan", err)
		rec.Logs = append(rec.Logs, aerr.Error())
		return nil, aerr
	}

	planAt := o.now().UTC()
	if _, err := o.state.UpdateEnvironment(ctx, project, envID, func(env *types.EnvironmentRuntimeState) error {
		env.LastPlanAt = &planAt
		env.LastPlanDriftDetected = res.Drift
		return nil
	}); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	rec.Summary = &types.ChangeSummary{Add: res.Summary.Add, Change: res.Summary.Change, Destroy: res.Summary.Destroy}
	rec.Logs = append(rec.Logs, res.Logs...)
	if len(res.Errors) == 0 {
		rec.Status = types.RunStatusSuccess
	}

	return &PlanOutcome{
		RunID:          runID,
		Summary:        *rec.Summary,
		Drift:          res.Drift,
		PlannedChanges: res.PlannedChanges,
		Warnings:       res.Warnings,
		Errors:         res.Errors,
		Logs:           res.Logs,
	}, nil
}

// Apply provisions an environment. Preconditions run before any lock is
// taken: prod requires a fresh plan, a force-unlock requires a newer plan,
// and a drift-flagged prod apply requires explicit acknowledgement.
func (o *Orchestrator) Apply(ctx context.Context, project, envID string, opts ApplyOptions) (*ApplyOutcome, error) {
	if _, ok := o.template.Environment(envID); !ok {
		return nil, errors.NotFoundError("environment", envID)
	}

	runID := uuid.New().String()
	started := o.now().UTC()
	rec := o.newRecord(runID, envID, types.RunActionApply, started)
	defer o.appendRecord(ctx, project, rec)

	o.logger.Info().Str("environment", envID).Str("run_id", runID).Str("action", "apply").Msg("starting apply")

	if err := o.checkApplyGates(ctx, project, envID, started, opts); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	if err := o.locks.Acquire(ctx, project, envID, runID, started, o.policy.LockTimeout, o.policy.StaleThreshold); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}
	defer o.release(ctx, project, envID)

	req, err := o.request(ctx, envID, started)
	if err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	// The environment reads as deploying while the adapter call is
	// outstanding; the outcome status replaces it below.
	if err := o.setStatus(ctx, project, envID, types.EnvironmentStatusDeploying); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	res, err := o.adapter.Apply(ctx, req)
	if err != nil {
		aerr := errors.AdapterError(o.adapter.Name(), "apply", err)
		rec.Logs = append(rec.Logs, aerr.Error())
		if serr := o.setStatus(ctx, project, envID, types.EnvironmentStatusFailed); serr != nil {
			rec.Logs = append(rec.Logs, serr.Error())
		}
		return nil, aerr
	}

	status := mapStatus(res.Status)
	if err := o.setStatus(ctx, project, envID, status); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	rec.Summary = &types.ChangeSummary{Add: res.Summary.Add, Change: res.Summary.Change, Destroy: res.Summary.Destroy}
	rec.Logs = append(rec.Logs, res.Logs...)
	if len(res.Errors) == 0 {
		rec.Status = types.RunStatusSuccess
	}

	return &ApplyOutcome{
		RunID:    runID,
		Status:   status,
		Summary:  *rec.Summary,
		Warnings: res.Warnings,
		Errors:   res.Errors,
		Logs:     res.Logs,
	}, nil
}

// checkApplyGates enforces the apply preconditions against current state.
func (o *Orchestrator) checkApplyGates(ctx context.Context, project, envID string, now time.Time, opts ApplyOptions) error {
	st, err := o.state.GetEnvironment(ctx, project, envID)
	if err != nil {
		return err
	}

	if envID == ProdEnvironmentID {
		if st.LastPlanAt == nil {
			return errors.Precondition(errors.ErrCodeProdPlanRequired,
				"applying to prod requires a prior plan",
				"run plan against prod first")
		}
		if age := now.Sub(*st.LastPlanAt); age > o.policy.ProdPlanMaxAge {
			return errors.Precondition(errors.ErrCodeProdPlanStale,
				fmt.Sprintf("the last prod plan is %s old (limit %s)", age.Round(time.Second), o.policy.ProdPlanMaxAge),
				"re-run plan against prod, then apply within the freshness window").
				WithDetail("plan_age", age.String())
		}
	}

	if st.LastForceUnlockAt != nil {
		if st.LastPlanAt == nil || !st.LastPlanAt.After(*st.LastForceUnlockAt) {
			return errors.Precondition(errors.ErrCodeReplanAfterForceUnlock,
				"the environment was force-unlocked after the last plan",
				"re-run plan to refresh the world view, then apply")
		}
	}

	if envID == ProdEnvironmentID && !opts.AllowDrift && o.effectiveDrift(st, now) {
		return errors.Precondition(errors.ErrCodeProdDriftConfirm,
			"the last plan detected drift on prod",
			"review the drift, then re-run apply with the drift override flag")
	}

	return nil
}

// effectiveDrift reports whether a recorded drift flag still gates prod. A
// configured DriftExpiry lets old flags age out; the default is that drift
// never expires automatically.
func (o *Orchestrator) effectiveDrift(st *types.EnvironmentRuntimeState, now time.Time) bool {
	if !st.LastPlanDriftDetected {
		return false
	}
	if o.policy.DriftExpiry == 0 || st.LastPlanAt == nil {
		return true
	}
	return now.Sub(*st.LastPlanAt) <= o.policy.DriftExpiry
}

// Destroy tears down an environment. The confirmation is validated before
// anything else; a failed confirmation never touches the lock or the
// adapter. A destroy that leaves the adapter reporting healthy is recorded
// as unknown, because destruction should never read as healthy.
func (o *Orchestrator) Destroy(ctx context.Context, project, envID string, confirmation *Confirmation) (*DestroyOutcome, error) {
	if _, ok := o.template.Environment(envID); !ok {
		return nil, errors.NotFoundError("environment", envID)
	}

	runID := uuid.New().String()
	started := o.now().UTC()
	rec := o.newRecord(runID, envID, types.RunActionDestroy, started)
	defer o.appendRecord(ctx, project, rec)

	o.logger.Info().Str("environment", envID).Str("run_id", runID).Str("action", "destroy").Msg("starting destroy")

	if err := ValidateConfirmation(envID, confirmation); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	if err := o.locks.Acquire(ctx, project, envID, runID, started, o.policy.LockTimeout, o.policy.StaleThreshold); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}
	defer o.release(ctx, project, envID)

	req, err := o.request(ctx, envID, started)
	if err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	res, err := o.adapter.Destroy(ctx, req)
	if err != nil {
		aerr := errors.AdapterError(o.adapter.Name(), "destroy", err)
		rec.Logs = append(rec.Logs, aerr.Error())
		if serr := o.setStatus(ctx, project, envID, types.EnvironmentStatusFailed); serr != nil {
			rec.Logs = append(rec.Logs, serr.Error())
		}
		return nil, aerr
	}

	status := mapStatus(res.Status)
	if status == types.EnvironmentStatusHealthy {
		status = types.EnvironmentStatusUnknown
	}
	if err := o.setStatus(ctx, project, envID, status); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	rec.Summary = &types.ChangeSummary{Add: res.Summary.Add, Change: res.Summary.Change, Destroy: res.Summary.Destroy}
	rec.Logs = append(rec.Logs, res.Logs...)
	if len(res.Errors) == 0 {
		rec.Status = types.RunStatusSuccess
	}

	return &DestroyOutcome{
		RunID:    runID,
		Status:   status,
		Summary:  *rec.Summary,
		Warnings: res.Warnings,
		Errors:   res.Errors,
		Logs:     res.Logs,
	}, nil
}

// Report reads the environment's real state without locking: it must stay
// usable to diagnose a stuck or stale lock.
func (o *Orchestrator) Report(ctx context.Context, project, envID string) (*ReportOutcome, error) {
	if _, ok := o.template.Environment(envID); !ok {
		return nil, errors.NotFoundError("environment", envID)
	}

	runID := uuid.New().String()
	started := o.now().UTC()
	rec := o.newRecord(runID, envID, types.RunActionReport, started)
	defer o.appendRecord(ctx, project, rec)

	req, err := o.request(ctx, envID, started)
	if err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	res, err := o.adapter.Report(ctx, req)
	if err != nil {
		aerr := errors.AdapterError(o.adapter.Name(), "report", err)
		rec.Logs = append(rec.Logs, aerr.Error())
		return nil, aerr
	}

	status := mapStatus(res.Status)
	reportedAt := o.now().UTC()
	if _, err := o.state.UpdateEnvironment(ctx, project, envID, func(env *types.EnvironmentRuntimeState) error {
		env.LastStatus = status
		env.LastPlanDriftDetected = res.Drift
		env.LastReportedAt = &reportedAt
		env.LastStatusUpdatedAt = &reportedAt
		return nil
	}); err != nil {
		rec.Logs = append(rec.Logs, err.Error())
		return nil, err
	}

	rec.Logs = append(rec.Logs, res.Logs...)
	if len(res.Errors) == 0 {
		rec.Status = types.RunStatusSuccess
	}

	return &ReportOutcome{
		RunID:    runID,
		Status:   status,
		Drift:    res.Drift,
		Warnings: res.Warnings,
		Errors:   res.Errors,
		Logs:     res.Logs,
	}, nil
}

// WatchOptions configures ReportWatch.
type WatchOptions struct {
	// Interval is the delay between cycles.
	Interval time.Duration

	// MaxCycles bounds the polling; it must be positive.
	MaxCycles int

	// OnCycle is invoked after every report with the 1-based cycle number.
	// Returning false stops the watch early.
	OnCycle func(cycle int, outcome *ReportOutcome, err error) bool
}

// ReportWatch repeats Report up to MaxCycles times with a fixed delay
// between cycles, for live drift polling. Cycles run strictly one after
// another; context cancellation between cycles stops the watch.
func (o *Orchestrator) ReportWatch(ctx context.Context, project, envID string, opts WatchOptions) error {
	if opts.MaxCycles <= 0 {
		return fmt.Errorf("watch requires a positive cycle count")
	}

	var lastErr error
	for cycle := 1; cycle <= opts.MaxCycles; cycle++ {
		outcome, err := o.Report(ctx, project, envID)
		lastErr = err

		if opts.OnCycle != nil && !opts.OnCycle(cycle, outcome, err) {
			return lastErr
		}
		if cycle == opts.MaxCycles {
			break
		}

		select {
		case <-time.After(opts.Interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// request builds the adapter request for an environment. A preparation
// failure aborts the action before the adapter runs; the caller records it
// like any other pre-adapter failure.
func (o *Orchestrator) request(ctx context.Context, envID string, now time.Time) (provisioner.Request, error) {
	workspace, inputs, err := o.prepare(ctx, envID)
	if err != nil {
		return provisioner.Request{}, fmt.Errorf("preparing workspace for %s: %w", envID, err)
	}
	return provisioner.Request{
		ProjectPath: o.projectPath,
		Environment: envID,
		Now:         now,
		Workspace:   workspace,
		Inputs:      inputs,
		Env:         o.env,
		Stdout:      o.stdout,
		Stderr:      o.stderr,
	}, nil
}

// newRecord starts a run record. Status begins failed and flips to success
// only when the action completes without adapter errors, so an early return
// always records the failure.
func (o *Orchestrator) newRecord(runID, envID string, action types.RunAction, started time.Time) *types.RunRecord {
	return &types.RunRecord{
		ID:            runID,
		EnvironmentID: envID,
		Action:        action,
		Status:        types.RunStatusFailed,
		Actor:         o.actor,
		StartedAt:     started,
		CreatedAt:     started,
		ExpiresAt:     started.Add(o.policy.HistoryRetention),
	}
}

// appendRecord finalizes and persists a run record. This runs deferred on
// every action path so each invocation appends exactly one record.
func (o *Orchestrator) appendRecord(ctx context.Context, project string, rec *types.RunRecord) {
	rec.FinishedAt = o.now().UTC()
	if err := o.state.AppendRun(ctx, project, rec); err != nil {
		o.logger.Error().Str("run_id", rec.ID).Err(err).Msg("failed to append run record")
	}
}

// release clears the lock unconditionally on the way out of an action.
func (o *Orchestrator) release(ctx context.Context, project, envID string) {
	if err := o.locks.Release(ctx, project, envID); err != nil {
		o.logger.Error().Str("environment", envID).Err(err).Msg("failed to release lock")
	}
}

func (o *Orchestrator) setStatus(ctx context.Context, project, envID string, status types.EnvironmentStatus) error {
	now := o.now().UTC()
	_, err := o.state.UpdateEnvironment(ctx, project, envID, func(env *types.EnvironmentRuntimeState) error {
		env.LastStatus = status
		env.LastStatusUpdatedAt = &now
		return nil
	})
	return err
}

// mapStatus converts an adapter status to the persisted environment status.
func mapStatus(s provisioner.Status) types.EnvironmentStatus {
	switch s {
	case provisioner.StatusHealthy:
		return types.EnvironmentStatusHealthy
	case provisioner.StatusDrifted:
		return types.EnvironmentStatusDrifted
	case provisioner.StatusDeploying:
		return types.EnvironmentStatusDeploying
	case provisioner.StatusFailed:
		return types.EnvironmentStatusFailed
	default:
		return types.EnvironmentStatusUnknown
	}
}
