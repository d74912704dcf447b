// Package provisioner defines the pluggable provisioning adapter contract
// the deployment orchestrator sequences calls against. Adapters run the
// actual infrastructure commands; the orchestrator only guards and records
// them.
package provisioner

import (
	"context"
	"io"
	"time"
)

// Status is the environment health an adapter reports.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDrifted   Status = "drifted"
	StatusDeploying Status = "deploying"
	StatusFailed    Status = "failed"
	StatusUnknown   Status = "unknown"
)

// Request carries the inputs for one adapter operation.
type Request struct {
	// ProjectPath is the project's root directory.
	ProjectPath string

	// Environment is the target environment id.
	Environment string

	// Now is the orchestrator's clock at dispatch time.
	Now time.Time

	// Workspace is the materialized provisioning source directory.
	Workspace string

	// Inputs are driver variables resolved from the template constraints.
	Inputs map[string]interface{}

	// Env is extra process environment for the driver (dotenv chain).
	Env map[string]string

	// Stdout/Stderr receive raw command output when non-nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Diagnostic is an adapter-reported warning or error. Errors travel as data
// inside results; their presence marks the run failed without aborting the
// orchestrator's bookkeeping.
type Diagnostic struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChangeSummary counts planned or performed resource changes.
type ChangeSummary struct {
	Add     int `json:"add"`
	Change  int `json:"change"`
	Destroy int `json:"destroy"`
}

// PlannedChange describes one resource a plan would touch.
type PlannedChange struct {
	Address      string   `json:"address"`
	Actions      []string `json:"actions"`
	ProviderName string   `json:"providerName,omitempty"`
	ResourceType string   `json:"resourceType,omitempty"`
}

// PlanResult is the outcome of a plan operation.
type PlanResult struct {
	Status         Status
	Summary        ChangeSummary
	Drift          bool
	PlannedChanges []PlannedChange
	Warnings       []Diagnostic
	Errors         []Diagnostic
	Logs           []string
}

// ApplyResult is the outcome of an apply operation.
type ApplyResult struct {
	Status   Status
	Summary  ChangeSummary
	Warnings []Diagnostic
	Errors   []Diagnostic
	Logs     []string
}

// DestroyResult is the outcome of a destroy operation.
type DestroyResult struct {
	Status   Status
	Summary  ChangeSummary
	Warnings []Diagnostic
	Errors   []Diagnostic
	Logs     []string
}

// ReportResult is the outcome of a report operation.
type ReportResult struct {
	Status   Status
	Drift    bool
	Warnings []Diagnostic
	Errors   []Diagnostic
	Logs     []string
}

// Adapter is a provisioning backend implementation.
type Adapter interface {
	// Name returns the adapter identifier (e.g. "opentofu", "docker").
	Name() string

	// Plan previews the changes required to reach the desired state.
	Plan(ctx context.Context, req Request) (*PlanResult, error)

	// Apply provisions the desired state.
	Apply(ctx context.Context, req Request) (*ApplyResult, error)

	// Destroy tears down everything the driver provisioned.
	Destroy(ctx context.Context, req Request) (*DestroyResult, error)

	// Report reads the current state without changing anything.
	Report(ctx context.Context, req Request) (*ReportResult, error)
}
