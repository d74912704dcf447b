// Package workspace materializes per-environment driver workspaces: it picks
// a compatible preset, merges the effective constraints, copies the
// provider's driver sources into the project's workspace directory, and
// substitutes deployment tokens into the copied files.
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/release"
	"github.com/terrazzo-io/tzctl/pkg/schema/template"
	"github.com/terrazzo-io/tzctl/pkg/state"
)

// ManifestName is the file recording what a workspace was materialized from.
const ManifestName = "workspace.manifest.json"

// tokenPattern matches deployment expressions like ${{ tz.environment.id }}.
var tokenPattern = regexp.MustCompile(`\$\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Manifest records the resolved inputs of a materialized workspace.
type Manifest struct {
	ProviderID      string                 `json:"providerId"`
	DriverType      string                 `json:"driverType"`
	PresetID        string                 `json:"presetId"`
	ReleaseTag      string                 `json:"releaseTag,omitempty"`
	ReleaseImageRef string                 `json:"releaseImageRef,omitempty"`
	Constraints     map[string]interface{} `json:"constraints,omitempty"`
	MaterializedAt  time.Time              `json:"materializedAt"`
}

// Result is a materialized workspace.
type Result struct {
	// Dir is the workspace directory, ready for the provisioning adapter.
	Dir string

	Manifest Manifest
}

// Options carries the project-level inputs to a materialization.
type Options struct {
	// ProjectPath is the project root; the workspace lands under
	// <ProjectPath>/.tzctl/workspaces/<envId>.
	ProjectPath string

	// ProjectName is the state-backend project key for preset persistence.
	ProjectName string

	// Region and Backend are provisioning hints merged into the
	// constraints under the "region" and "backend" keys.
	Region  string
	Backend string

	// Release is the resolved active release, or nil when the project has
	// none.
	Release *release.Release

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Materializer builds driver workspaces for a template's environments.
type Materializer struct {
	state    state.Manager
	template *template.Template

	// templateDir anchors each provider's driver entry path.
	templateDir string
}

// NewMaterializer creates a materializer. Driver entries resolve relative to
// the template's source file; a template loaded from bytes resolves them
// relative to the project at materialization time.
func NewMaterializer(mgr state.Manager, tpl *template.Template) *Materializer {
	dir := ""
	if tpl.SourcePath != "" {
		dir = filepath.Dir(tpl.SourcePath)
	}
	return &Materializer{state: mgr, template: tpl, templateDir: dir}
}

// Dir returns the conventional workspace directory for an environment.
func Dir(projectPath, envID string) string {
	return filepath.Join(projectPath, ".tzctl", "workspaces", envID)
}

// Materialize builds the workspace for an environment: prior contents are
// replaced, every text file gets token substitution, and the manifest
// records what went in. The chosen preset is persisted so later
// materializations keep it while it stays compatible.
func (m *Materializer) Materialize(ctx context.Context, envID string, opts Options) (*Result, error) {
	env, ok := m.template.Environment(envID)
	if !ok {
		return nil, errors.NotFoundError("environment", envID)
	}
	provider, ok := m.template.Provider(env.ProviderID)
	if !ok {
		return nil, errors.NotFoundError("provider", env.ProviderID)
	}

	preset, err := m.resolvePreset(ctx, opts.ProjectName, env)
	if err != nil {
		return nil, err
	}

	constraints := m.mergeConstraints(env, preset, opts)

	dest := Dir(opts.ProjectPath, envID)
	source := provider.DriverEntry
	if !filepath.IsAbs(source) {
		base := m.templateDir
		if base == "" {
			base = opts.ProjectPath
		}
		source = filepath.Join(base, source)
	}

	if err := os.RemoveAll(dest); err != nil {
		return nil, fmt.Errorf("failed to clear workspace %s: %w", dest, err)
	}
	if err := copyTree(source, dest); err != nil {
		return nil, err
	}

	tokens := m.tokenValues(env, provider, constraints, opts.Release)
	if err := substituteTree(dest, tokens, constraints); err != nil {
		return nil, err
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	manifest := Manifest{
		ProviderID:     provider.ID,
		DriverType:     provider.DriverType,
		PresetID:       preset.ID,
		Constraints:    constraints,
		MaterializedAt: now().UTC(),
	}
	if opts.Release != nil {
		manifest.ReleaseTag = opts.Release.Tag
		manifest.ReleaseImageRef = opts.Release.ImageRef
	}
	if err := writeManifest(dest, manifest); err != nil {
		return nil, err
	}

	return &Result{Dir: dest, Manifest: manifest}, nil
}

// resolvePreset returns the persisted preset selection when it is still
// compatible with the environment, else the first compatible preset, and
// persists the choice.
func (m *Materializer) resolvePreset(ctx context.Context, projectName string, env template.Environment) (template.Preset, error) {
	compatible := m.template.CompatiblePresets(env.ID)
	if len(compatible) == 0 {
		return template.Preset{}, errors.ValidationError(
			fmt.Sprintf("no compatible preset found for environment '%s'", env.ID),
			map[string]interface{}{"environment": env.ID},
		)
	}

	chosen := compatible[0]
	if selected, err := m.state.SelectedPreset(ctx, projectName, env.ID); err == nil && selected != "" {
		for _, p := range compatible {
			if p.ID == selected {
				chosen = p
				break
			}
		}
	}

	if err := m.state.SelectPreset(ctx, projectName, env.ID, chosen.ID); err != nil {
		return template.Preset{}, err
	}
	return chosen, nil
}

// mergeConstraints layers the effective constraints. Later layers win:
// environment, project hints, release image, preset.
func (m *Materializer) mergeConstraints(env template.Environment, preset template.Preset, opts Options) map[string]interface{} {
	merged := make(map[string]interface{})
	for k, v := range env.Constraints {
		merged[k] = v
	}
	if opts.Region != "" {
		merged["region"] = opts.Region
	}
	if opts.Backend != "" {
		merged["backend"] = opts.Backend
	}
	if opts.Release != nil {
		image := map[string]interface{}{"tag": opts.Release.Tag}
		if opts.Release.ImageRef != "" {
			image["ref"] = opts.Release.ImageRef
		}
		merged["image"] = image
	}
	for k, v := range preset.Constraints {
		merged[k] = v
	}
	return merged
}

// tokenValues maps the non-constraint token names to their values.
func (m *Materializer) tokenValues(env template.Environment, provider template.Provider, constraints map[string]interface{}, rel *release.Release) map[string]string {
	values := map[string]string{
		"tz.environment.id": env.ID,
		"tz.provider.id":    provider.ID,
	}
	if rel != nil {
		values["tz.release.tag"] = rel.Tag
		if rel.ImageRef != "" {
			values["tz.release.imageRef"] = rel.ImageRef
		}
	}
	return values
}

// copyTree copies the driver source tree into dest, preserving file modes.
func copyTree(source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return errors.NotFoundError("driver source", source)
	}
	if !info.IsDir() {
		return errors.ValidationError(
			fmt.Sprintf("driver source %s is not a directory", source), nil)
	}

	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(source, dest string, mode os.FileMode) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// substituteTree rewrites every text file under dir, resolving ${{ tz.* }}
// tokens. Binary-looking files are left untouched. A token that resolves to
// nothing, or a leftover expression opener after substitution, aborts with
// an error naming the file and the token.
func substituteTree(dir string, tokens map[string]string, constraints map[string]interface{}) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if isBinary(content) {
			return nil
		}

		substituted, serr := substitute(path, content, tokens, constraints)
		if serr != nil {
			return serr
		}
		if bytes.Equal(substituted, content) {
			return nil
		}
		return os.WriteFile(path, substituted, info.Mode().Perm())
	})
}

func substitute(path string, content []byte, tokens map[string]string, constraints map[string]interface{}) ([]byte, error) {
	var resolveErr error
	substituted := tokenPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		if resolveErr != nil {
			return match
		}
		token := string(tokenPattern.FindSubmatch(match)[1])
		value, ok := resolveToken(token, tokens, constraints)
		if !ok {
			resolveErr = errors.ExpressionError(token,
				fmt.Errorf("unresolvable token in %s", path))
			return match
		}
		return []byte(value)
	})
	if resolveErr != nil {
		return nil, resolveErr
	}

	// Anything still opening an expression is malformed or unknown syntax.
	if idx := bytes.Index(substituted, []byte("${{")); idx != -1 {
		line := bytes.Count(substituted[:idx], []byte("\n")) + 1
		return nil, errors.ExpressionError("${{",
			fmt.Errorf("unresolved expression at %s:%d", path, line))
	}
	return substituted, nil
}

// resolveToken resolves one token name against the fixed tokens and the
// constraints namespace.
func resolveToken(token string, tokens map[string]string, constraints map[string]interface{}) (string, bool) {
	if value, ok := tokens[token]; ok {
		return value, true
	}
	if dotted, ok := strings.CutPrefix(token, "tz.constraints."); ok {
		value, found := lookupPath(constraints, strings.Split(dotted, "."))
		if !found {
			return "", false
		}
		return fmt.Sprintf("%v", value), true
	}
	return "", false
}

// lookupPath walks a dotted path through nested string-keyed maps.
func lookupPath(m map[string]interface{}, path []string) (interface{}, bool) {
	var current interface{} = m
	for _, key := range path {
		node, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = node[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// isBinary sniffs for a NUL byte in the leading bytes of a file.
func isBinary(content []byte) bool {
	sniff := content
	if len(sniff) > 8000 {
		sniff = sniff[:8000]
	}
	return bytes.IndexByte(sniff, 0) != -1
}

func writeManifest(dir string, manifest Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workspace manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), data, 0644)
}
