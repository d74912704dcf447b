// Package state provides persistent deployment state for tzctl projects.
//
// Each project owns a single JSON record holding its per-environment runtime
// state, preset selections, and deployment run history. The record is always
// read and written whole; Manager serializes read-modify-write cycles with an
// in-process mutex plus a short-lived backend lock so concurrent processes
// cannot interleave partial updates.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/state/backend"
	"github.com/terrazzo-io/tzctl/pkg/state/types"
)

// Manager provides high-level state operations.
type Manager interface {
	// Project records
	GetProject(ctx context.Context, name string) (*types.ProjectRecord, error)
	SaveProject(ctx context.Context, record *types.ProjectRecord) error
	DeleteProject(ctx context.Context, name string) error
	ListProjects(ctx context.Context) ([]string, error)

	// Environment runtime state. GetEnvironment returns a fresh state for
	// environments (or projects) that have never been touched.
	GetEnvironment(ctx context.Context, project, envID string) (*types.EnvironmentRuntimeState, error)
	UpdateEnvironment(ctx context.Context, project, envID string, mutate func(*types.EnvironmentRuntimeState) error) (*types.EnvironmentRuntimeState, error)

	// Preset selections
	SelectPreset(ctx context.Context, project, envID, presetID string) error
	SelectedPreset(ctx context.Context, project, envID string) (string, error)

	// Run history. AppendRun prunes records whose retention horizon passed.
	AppendRun(ctx context.Context, project string, record *types.RunRecord) error
	ListRuns(ctx context.Context, project, envID string, limit int) ([]*types.RunRecord, error)

	// Backend info
	Backend() backend.Backend
}

// manager implements the Manager interface.
type manager struct {
	backend backend.Backend
	mu      sync.Mutex
}

// NewManager creates a new state manager with the given backend.
func NewManager(b backend.Backend) Manager {
	return &manager{backend: b}
}

// NewManagerFromConfig creates a new state manager from backend configuration.
func NewManagerFromConfig(config backend.Config) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return NewManager(b), nil
}

func (m *manager) Backend() backend.Backend {
	return m.backend
}

// Project operations

func (m *manager) GetProject(ctx context.Context, name string) (*types.ProjectRecord, error) {
	return readJSON[types.ProjectRecord](ctx, m.backend, projectPath(name))
}

func (m *manager) SaveProject(ctx context.Context, record *types.ProjectRecord) error {
	record.UpdatedAt = time.Now().UTC()
	return writeJSON(ctx, m.backend, projectPath(record.Name), record)
}

func (m *manager) DeleteProject(ctx context.Context, name string) error {
	paths, err := m.backend.List(ctx, path.Join("projects", name))
	if err != nil {
		return err
	}

	for _, p := range paths {
		if err := m.backend.Delete(ctx, p); err != nil {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}

	return nil
}

func (m *manager) ListProjects(ctx context.Context) ([]string, error) {
	paths, err := m.backend.List(ctx, "projects/")
	if err != nil {
		return nil, err
	}

	// Path format: projects/<name>/project.state.json
	names := make(map[string]bool)
	for _, p := range paths {
		parts := splitPath(p)
		if len(parts) >= 2 {
			names[parts[1]] = true
		}
	}

	result := make([]string, 0, len(names))
	for name := range names {
		result = append(result, name)
	}
	sort.Strings(result)
	return result, nil
}

// Environment operations

func (m *manager) GetEnvironment(ctx context.Context, project, envID string) (*types.EnvironmentRuntimeState, error) {
	record, err := m.GetProject(ctx, project)
	if err != nil {
		if err == backend.ErrNotFound {
			return &types.EnvironmentRuntimeState{LastStatus: types.EnvironmentStatusUnknown}, nil
		}
		return nil, err
	}
	return record.Environment(envID), nil
}

func (m *manager) UpdateEnvironment(ctx context.Context, project, envID string, mutate func(*types.EnvironmentRuntimeState) error) (*types.EnvironmentRuntimeState, error) {
	var env *types.EnvironmentRuntimeState
	err := m.mutateProject(ctx, project, func(record *types.ProjectRecord) error {
		env = record.Environment(envID)
		return mutate(env)
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Preset operations

func (m *manager) SelectPreset(ctx context.Context, project, envID, presetID string) error {
	return m.mutateProject(ctx, project, func(record *types.ProjectRecord) error {
		if record.DeploymentState.PresetSelections == nil {
			record.DeploymentState.PresetSelections = make(map[string]string)
		}
		record.DeploymentState.PresetSelections[envID] = presetID
		return nil
	})
}

func (m *manager) SelectedPreset(ctx context.Context, project, envID string) (string, error) {
	record, err := m.GetProject(ctx, project)
	if err != nil {
		if err == backend.ErrNotFound {
			return "", nil
		}
		return "", err
	}
	return record.DeploymentState.PresetSelections[envID], nil
}

// Run history

func (m *manager) AppendRun(ctx context.Context, project string, record *types.RunRecord) error {
	return m.mutateProject(ctx, project, func(p *types.ProjectRecord) error {
		// Prune history that aged past its retention horizon. The new
		// record's creation time is the reference clock.
		kept := p.DeploymentRunHistory[:0]
		for _, run := range p.DeploymentRunHistory {
			if !run.ExpiresAt.IsZero() && !run.ExpiresAt.After(record.CreatedAt) {
				continue
			}
			kept = append(kept, run)
		}
		p.DeploymentRunHistory = append(kept, record)
		return nil
	})
}

func (m *manager) ListRuns(ctx context.Context, project, envID string, limit int) ([]*types.RunRecord, error) {
	record, err := m.GetProject(ctx, project)
	if err != nil {
		if err == backend.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	var runs []*types.RunRecord
	for _, run := range record.DeploymentRunHistory {
		if envID != "" && run.EnvironmentID != envID {
			continue
		}
		runs = append(runs, run)
	}

	// Newest first
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// mutateProject runs fn inside an exclusive read-modify-write cycle and
// persists the result. A missing record is initialized first.
func (m *manager) mutateProject(ctx context.Context, name string, fn func(*types.ProjectRecord) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, err := m.backend.Lock(ctx, path.Join("projects", name), backend.LockInfo{
		Who:       "tzctl",
		Operation: "record-update",
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeConflict, fmt.Sprintf("project record %q is being updated", name), err)
	}
	defer func() { _ = lock.Unlock(ctx) }()

	record, err := m.GetProject(ctx, name)
	if err != nil {
		if err != backend.ErrNotFound {
			return err
		}
		record = &types.ProjectRecord{
			Name:      name,
			CreatedAt: time.Now().UTC(),
		}
	}

	if err := fn(record); err != nil {
		return err
	}

	record.UpdatedAt = time.Now().UTC()
	return writeJSON(ctx, m.backend, projectPath(name), record)
}

// Path helpers

func projectPath(name string) string {
	return path.Join("projects", name, "project.state.json")
}

func splitPath(p string) []string {
	var parts []string
	for p != "" && p != "." && p != "/" {
		dir, file := path.Split(p)
		if file != "" {
			parts = append([]string{file}, parts...)
		}
		p = path.Clean(dir)
	}
	return parts
}

// JSON helpers

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return b.Write(ctx, p, bytes.NewReader(content))
}
