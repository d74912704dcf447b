package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/terrazzo-io/tzctl/pkg/deploy"
	"github.com/terrazzo-io/tzctl/pkg/envfile"
	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/project"
	"github.com/terrazzo-io/tzctl/pkg/provisioner"
	"github.com/terrazzo-io/tzctl/pkg/release"
	"github.com/terrazzo-io/tzctl/pkg/schema/template"
	"github.com/terrazzo-io/tzctl/pkg/state"
	"github.com/terrazzo-io/tzctl/pkg/workspace"
)

// runContext bundles everything a deployment command needs: the project
// config, its deploy template, the resolved release, and the state manager.
type runContext struct {
	projectDir string
	cfg        *project.Config
	tpl        *template.Template
	rel        *release.Release
	state      state.Manager
}

// newRunContext loads the project rooted at the --project directory and its
// deploy template, and connects the state backend.
func newRunContext(backendType string, backendConfig []string) (*runContext, error) {
	dir := viper.GetString("project")
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	cfg, err := project.Load(abs)
	if err != nil {
		return nil, err
	}

	tpl, err := loadTemplate(abs, cfg.Type)
	if err != nil {
		return nil, err
	}

	rel, err := release.Resolve(abs, cfg)
	if err != nil {
		return nil, err
	}

	mgr, err := createStateManagerWithConfig(backendType, backendConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create state manager: %w", err)
	}

	return &runContext{
		projectDir: abs,
		cfg:        cfg,
		tpl:        tpl,
		rel:        rel,
		state:      mgr,
	}, nil
}

// loadTemplate finds the deploy template: the project-local file wins, then
// the configured templates directory keyed by project type.
func loadTemplate(projectDir, projectType string) (*template.Template, error) {
	loader := template.NewLoader()

	result, err := loader.Load(filepath.Join(projectDir, template.FileName))
	if err != nil {
		return nil, err
	}
	if result.Exists {
		return result.Template, nil
	}

	if templatesDir := viper.GetString("templates_dir"); templatesDir != "" {
		result, err = loader.LoadForProjectType(templatesDir, projectType)
		if err != nil {
			return nil, err
		}
		if result.Exists {
			return result.Template, nil
		}
	}

	return nil, fmt.Errorf(
		"no deploy template found\n\n"+
			"Expected %s in the project directory, or a templates directory\n"+
			"configured via TZCTL_TEMPLATES_DIR holding one for project type %q.",
		template.FileName, projectType)
}

// orchestratorFor builds the orchestrator for one environment: the adapter
// matching the environment's provider driver, with workspace materialization
// and dotenv loading wired in as the prepare step.
func (rc *runContext) orchestratorFor(envID string) (*deploy.Orchestrator, error) {
	env, ok := rc.tpl.Environment(envID)
	if !ok {
		return nil, errors.NotFoundError("environment", envID)
	}
	provider, ok := rc.tpl.Provider(env.ProviderID)
	if !ok {
		return nil, errors.NotFoundError("provider", env.ProviderID)
	}

	adapter, err := provisioner.Open(provider.DriverType)
	if err != nil {
		return nil, fmt.Errorf("%w\n\nRegistered driver types: %s",
			err, strings.Join(provisioner.List(), ", "))
	}

	vars, err := envfile.Load(rc.projectDir, envID)
	if err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}

	mat := workspace.NewMaterializer(rc.state, rc.tpl)
	prepare := func(ctx context.Context, envID string) (string, map[string]interface{}, error) {
		res, err := mat.Materialize(ctx, envID, workspace.Options{
			ProjectPath: rc.projectDir,
			ProjectName: rc.cfg.Name,
			Region:      rc.cfg.Region,
			Backend:     rc.cfg.Backend,
			Release:     rc.rel,
		})
		if err != nil {
			return "", nil, err
		}
		return res.Dir, nil, nil
	}

	return deploy.New(deploy.Options{
		State:       rc.state,
		Template:    rc.tpl,
		Adapter:     adapter,
		ProjectPath: rc.projectDir,
		Prepare:     prepare,
		Env:         vars,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Actor:       currentActor(),
		Logger:      newLogger(),
	})
}

// currentActor names the operator for run records.
func currentActor() string {
	if actor := os.Getenv("TZCTL_ACTOR"); actor != "" {
		return actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// adapterFailure converts adapter-reported errors into a command error so
// the process exits non-zero. Warnings never fail a command.
func adapterFailure(action string, errs []provisioner.Diagnostic) error {
	if len(errs) == 0 {
		return nil
	}
	first := errs[0]
	return fmt.Errorf("%s failed with %d errors: [%s] %s", action, len(errs), first.Code, first.Message)
}

// printDiagnostics renders adapter warnings and errors.
func printDiagnostics(warnings, errs []provisioner.Diagnostic) {
	for _, w := range warnings {
		fmt.Printf("[warning] %s: %s\n", w.Code, w.Message)
	}
	for _, e := range errs {
		fmt.Printf("[error] %s: %s\n", e.Code, e.Message)
	}
}
