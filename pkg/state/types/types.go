// Package types defines the data structures for tzctl deployment state.
package types

import (
	"time"
)

// EnvironmentStatus is the last known health of a deployed environment.
type EnvironmentStatus string

const (
	EnvironmentStatusHealthy   EnvironmentStatus = "healthy"
	EnvironmentStatusDrifted   EnvironmentStatus = "drifted"
	EnvironmentStatusDeploying EnvironmentStatus = "deploying"
	EnvironmentStatusFailed    EnvironmentStatus = "failed"
	EnvironmentStatusUnknown   EnvironmentStatus = "unknown"
)

// RunAction identifies the orchestrator operation a run record belongs to.
type RunAction string

const (
	RunActionPlan    RunAction = "plan"
	RunActionApply   RunAction = "apply"
	RunActionDestroy RunAction = "destroy"
	RunActionReport  RunAction = "report"
	RunActionRotate  RunAction = "rotate"
)

// RunStatus is the outcome of a single run.
type RunStatus string

const (
	RunStatusSuccess   RunStatus = "success"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ActiveLock marks an environment as held by an in-flight run.
type ActiveLock struct {
	RunID      string    `json:"run_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// EnvironmentRuntimeState tracks per-environment deployment bookkeeping.
// All timestamps are optional; absence means the event never happened.
type EnvironmentRuntimeState struct {
	LastPlanAt            *time.Time        `json:"last_plan_at,omitempty"`
	LastPlanDriftDetected bool              `json:"last_plan_drift_detected,omitempty"`
	LastForceUnlockAt     *time.Time        `json:"last_force_unlock_at,omitempty"`
	LastReportedAt        *time.Time        `json:"last_reported_at,omitempty"`
	LastStatusUpdatedAt   *time.Time        `json:"last_status_updated_at,omitempty"`
	LastStatus            EnvironmentStatus `json:"last_status,omitempty"`
	ActiveLock            *ActiveLock       `json:"active_lock,omitempty"`
}

// ChangeSummary counts the resource changes a run planned or performed.
type ChangeSummary struct {
	Add     int `json:"add"`
	Change  int `json:"change"`
	Destroy int `json:"destroy"`
}

// RunRecord is one append-only entry in a project's deployment history.
type RunRecord struct {
	ID            string         `json:"id"`
	EnvironmentID string         `json:"environment_id"`
	Action        RunAction      `json:"action"`
	Status        RunStatus      `json:"status"`
	Actor         string         `json:"actor,omitempty"`
	Summary       *ChangeSummary `json:"summary,omitempty"`
	Logs          []string       `json:"logs,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// DeploymentState is the per-project deployment section of the record.
type DeploymentState struct {
	// Environments maps environment id to its runtime state.
	Environments map[string]*EnvironmentRuntimeState `json:"environments,omitempty"`

	// PresetSelections remembers which deploy preset each environment
	// last materialized with.
	PresetSelections map[string]string `json:"preset_selections,omitempty"`
}

// ProjectRecord is the single persisted document for a project. It is always
// read and written whole; field-level mutation goes through the state manager.
type ProjectRecord struct {
	// Metadata
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DeploymentState DeploymentState `json:"deployment_state"`

	// DeploymentRunHistory is append-only and ordered by creation.
	DeploymentRunHistory []*RunRecord `json:"deployment_run_history,omitempty"`
}

// Environment returns the runtime state for an environment, allocating the
// map and entry on first use so callers can mutate the result in place.
func (p *ProjectRecord) Environment(envID string) *EnvironmentRuntimeState {
	if p.DeploymentState.Environments == nil {
		p.DeploymentState.Environments = make(map[string]*EnvironmentRuntimeState)
	}
	env, ok := p.DeploymentState.Environments[envID]
	if !ok {
		env = &EnvironmentRuntimeState{LastStatus: EnvironmentStatusUnknown}
		p.DeploymentState.Environments[envID] = env
	}
	return env
}
