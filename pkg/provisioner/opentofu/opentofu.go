// Package opentofu implements a provisioning adapter that shells out to the
// OpenTofu or Terraform binary, driving it with machine-readable JSON output.
package opentofu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/terrazzo-io/tzctl/pkg/provisioner"
)

func init() {
	// Register both opentofu and terraform driver types
	provisioner.Register("opentofu", func() (provisioner.Adapter, error) {
		return NewAdapter("tofu")
	})
	provisioner.Register("terraform", func() (provisioner.Adapter, error) {
		return NewAdapter("terraform")
	})
}

// Adapter runs tofu/terraform commands against a materialized workspace.
type Adapter struct {
	// binaryPath is the resolved path to the tofu/terraform binary
	binaryPath string
	// binaryName is "tofu" or "terraform"
	binaryName string
}

// NewAdapter creates an adapter for the given binary, falling back to the
// other binary when the preferred one is not installed.
func NewAdapter(binaryName string) (*Adapter, error) {
	binaryPath, err := exec.LookPath(binaryName)
	if err != nil {
		alternate := "terraform"
		if binaryName == "terraform" {
			alternate = "tofu"
		}
		binaryPath, err = exec.LookPath(alternate)
		if err != nil {
			return nil, fmt.Errorf("neither tofu nor terraform binary found: %w", err)
		}
		binaryName = alternate
	}

	return &Adapter{
		binaryPath: binaryPath,
		binaryName: binaryName,
	}, nil
}

func (a *Adapter) Name() string {
	return "opentofu"
}

func (a *Adapter) Plan(ctx context.Context, req provisioner.Request) (*provisioner.PlanResult, error) {
	if err := a.prepare(ctx, req); err != nil {
		return nil, err
	}

	output, runErr := a.run(ctx, req, a.varArgs(req, "plan", "-json", "-input=false")...)
	stream := parseStream(output)

	result := &provisioner.PlanResult{
		Summary:        stream.summary,
		Drift:          stream.drift,
		PlannedChanges: stream.changes,
		Warnings:       stream.warnings,
		Errors:         stream.errors,
		Logs:           stream.logs,
	}

	if runErr != nil && len(result.Errors) == 0 {
		// The binary failed without a diagnostic; surface the raw failure.
		result.Errors = append(result.Errors, provisioner.Diagnostic{Code: "EXEC_FAILED", Message: runErr.Error()})
	}

	switch {
	case len(result.Errors) > 0:
		result.Status = provisioner.StatusFailed
	case stream.drift:
		result.Status = provisioner.StatusDrifted
	default:
		result.Status = provisioner.StatusHealthy
	}
	return result, nil
}

func (a *Adapter) Apply(ctx context.Context, req provisioner.Request) (*provisioner.ApplyResult, error) {
	if err := a.prepare(ctx, req); err != nil {
		return nil, err
	}

	output, runErr := a.run(ctx, req, a.varArgs(req, "apply", "-auto-approve", "-json", "-input=false")...)
	stream := parseStream(output)

	result := &provisioner.ApplyResult{
		Summary:  stream.summary,
		Warnings: stream.warnings,
		Errors:   stream.errors,
		Logs:     stream.logs,
	}
	if runErr != nil && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, provisioner.Diagnostic{Code: "EXEC_FAILED", Message: runErr.Error()})
	}

	if len(result.Errors) > 0 {
		result.Status = provisioner.StatusFailed
	} else {
		result.Status = provisioner.StatusHealthy
	}
	return result, nil
}

func (a *Adapter) Destroy(ctx context.Context, req provisioner.Request) (*provisioner.DestroyResult, error) {
	if err := a.prepare(ctx, req); err != nil {
		return nil, err
	}

	output, runErr := a.run(ctx, req, a.varArgs(req, "destroy", "-auto-approve", "-json", "-input=false")...)
	stream := parseStream(output)

	result := &provisioner.DestroyResult{
		Summary:  stream.summary,
		Warnings: stream.warnings,
		Errors:   stream.errors,
		Logs:     stream.logs,
	}
	if runErr != nil && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, provisioner.Diagnostic{Code: "EXEC_FAILED", Message: runErr.Error()})
	}

	if len(result.Errors) > 0 {
		result.Status = provisioner.StatusFailed
	} else {
		result.Status = provisioner.StatusUnknown
	}
	return result, nil
}

func (a *Adapter) Report(ctx context.Context, req provisioner.Request) (*provisioner.ReportResult, error) {
	if err := a.prepare(ctx, req); err != nil {
		return nil, err
	}

	// A refresh-only plan reads the real infrastructure without proposing
	// configuration changes; anything it would change is drift.
	output, runErr := a.run(ctx, req, a.varArgs(req, "plan", "-refresh-only", "-json", "-input=false")...)
	stream := parseStream(output)

	result := &provisioner.ReportResult{
		Drift:    stream.drift || len(stream.changes) > 0,
		Warnings: stream.warnings,
		Errors:   stream.errors,
		Logs:     stream.logs,
	}
	if runErr != nil && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, provisioner.Diagnostic{Code: "EXEC_FAILED", Message: runErr.Error()})
	}

	switch {
	case len(result.Errors) > 0:
		result.Status = provisioner.StatusFailed
	case result.Drift:
		result.Status = provisioner.StatusDrifted
	default:
		result.Status = provisioner.StatusHealthy
	}
	return result, nil
}

// prepare writes driver variables and initializes the workspace.
func (a *Adapter) prepare(ctx context.Context, req provisioner.Request) error {
	if err := a.writeTFVars(req.Workspace, req.Inputs); err != nil {
		return fmt.Errorf("failed to write tfvars: %w", err)
	}

	// Already initialized workspaces are left alone.
	if _, err := os.Stat(filepath.Join(req.Workspace, ".terraform")); err == nil {
		return nil
	}

	if _, err := a.run(ctx, req, "init", "-input=false"); err != nil {
		return fmt.Errorf("init failed: %w", err)
	}
	return nil
}

func (a *Adapter) writeTFVars(workDir string, inputs map[string]interface{}) error {
	if len(inputs) == 0 {
		return nil
	}

	data, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workDir, "terraform.tfvars.json"), data, 0644)
}

// varArgs appends the var-file flag when a tfvars file was written.
func (a *Adapter) varArgs(req provisioner.Request, args ...string) []string {
	if _, err := os.Stat(filepath.Join(req.Workspace, "terraform.tfvars.json")); err == nil {
		args = append(args, "-var-file=terraform.tfvars.json")
	}
	return args
}

func (a *Adapter) run(ctx context.Context, req provisioner.Request, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, a.binaryPath, args...)
	cmd.Dir = req.Workspace

	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env, "TF_INPUT=0", "TF_IN_AUTOMATION=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if req.Stdout != nil {
		cmd.Stdout = io.MultiWriter(&stdout, req.Stdout)
	}
	if req.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, req.Stderr)
	}

	err := cmd.Run()
	if err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w: %s", a.binaryName, args[0], err, stderr.String())
	}
	return stdout.String(), nil
}

// Ensure we implement the Adapter interface
var _ provisioner.Adapter = (*Adapter)(nil)
