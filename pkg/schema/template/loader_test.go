package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrazzo-io/tzctl/pkg/errors"
)

const validTemplate = `
version: v1
providers:
  - id: p1
    driverType: opentofu
    driverEntry: ./infra
environments:
  - id: staging
    label: Staging
    providerId: p1
    capabilities: [app-runtime]
    outputs:
      - key: app_url
        type: string
      - key: db_password
        type: secret-ref
        sensitive: true
        rotatable: true
      - key: replicas
        type: number
        required: false
        default: 1
  - id: prod
    label: Production
    providerId: p1
    capabilities: [app-runtime, database]
    constraints:
      size: large
presets:
  - id: cheap
    label: Cheap
    environmentIds: [staging]
  - id: standard
    label: Standard
    providerId: p1
    environmentIds: [staging, prod]
    constraints:
      size: medium
`

func TestLoader_Load_Valid(t *testing.T) {
	path := writeTemplate(t, validTemplate)

	result, err := NewLoader().Load(path)
	require.NoError(t, err)
	assert.True(t, result.Exists)
	require.NotNil(t, result.Template)

	tpl := result.Template
	assert.Equal(t, "v1", tpl.Version)
	assert.Equal(t, path, tpl.SourcePath)
	assert.Len(t, tpl.Providers, 1)
	assert.Len(t, tpl.Environments, 2)
	assert.Len(t, tpl.Presets, 2)

	staging, ok := tpl.Environment("staging")
	require.True(t, ok)
	assert.Equal(t, "p1", staging.ProviderID)
	assert.Equal(t, []Capability{CapabilityAppRuntime}, staging.Capabilities)

	// Absent required defaults to true; explicit false is respected.
	appURL, ok := staging.Output("app_url")
	require.True(t, ok)
	assert.True(t, appURL.Required)
	assert.Nil(t, appURL.Default)

	replicas, ok := staging.Output("replicas")
	require.True(t, ok)
	assert.False(t, replicas.Required)
	assert.Equal(t, 1, replicas.Default)
}

func TestLoader_Load_Absent(t *testing.T) {
	result, err := NewLoader().Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.False(t, result.Exists)
	assert.Nil(t, result.Template)
}

func TestLoader_Load_InvalidYAML(t *testing.T) {
	path := writeTemplate(t, "version: [unterminated")

	result, err := NewLoader().Load(path)
	require.Error(t, err)
	assert.True(t, result.Exists)
	assert.True(t, errors.Is(err, errors.ErrCodeParse))
}

func TestLoader_Load_UnsupportedVersion(t *testing.T) {
	_, err := NewLoader().LoadFromBytes([]byte("version: v2"), "deploy.template.yml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestLoader_Load_BadProviderID(t *testing.T) {
	tpl := `
version: v1
providers:
  - id: "1-bad"
    driverType: opentofu
    driverEntry: ./infra
environments:
  - id: staging
    label: Staging
    providerId: "1-bad"
    capabilities: [app-runtime]
presets:
  - id: cheap
    label: Cheap
    environmentIds: [staging]
`
	_, err := NewLoader().LoadFromBytes([]byte(tpl), "deploy.template.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers[0].id")
}

func TestLoader_Load_FailFast(t *testing.T) {
	// Both providers are invalid; only the first may be reported.
	tpl := `
version: v1
providers:
  - id: "BAD"
    driverType: opentofu
    driverEntry: ./infra
  - id: "ALSO_BAD"
    driverType: opentofu
    driverEntry: ./infra
environments:
  - id: staging
    label: Staging
    providerId: missing
    capabilities: [app-runtime]
presets: []
`
	_, err := NewLoader().LoadFromBytes([]byte(tpl), "deploy.template.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers[0].id")
	assert.NotContains(t, err.Error(), "providers[1]")
	assert.NotContains(t, err.Error(), "missing")
}

func TestLoader_Load_EnvironmentProviderMissing(t *testing.T) {
	tpl := `
version: v1
providers:
  - id: p1
    driverType: opentofu
    driverEntry: ./infra
environments:
  - id: staging
    label: Staging
    providerId: p2
    capabilities: [app-runtime]
presets:
  - id: cheap
    label: Cheap
    environmentIds: [staging]
`
	_, err := NewLoader().LoadFromBytes([]byte(tpl), "deploy.template.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `references undeclared provider "p2"`)
}

func TestLoader_Load_PresetEnvironmentMissing(t *testing.T) {
	tpl := `
version: v1
providers:
  - id: p1
    driverType: opentofu
    driverEntry: ./infra
environments:
  - id: staging
    label: Staging
    providerId: p1
    capabilities: [app-runtime]
presets:
  - id: cheap
    label: Cheap
    environmentIds: [staging, nowhere]
`
	_, err := NewLoader().LoadFromBytes([]byte(tpl), "deploy.template.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `references undeclared environment "nowhere"`)
}

func TestLoader_Load_NoCompatiblePreset(t *testing.T) {
	// Removing the only preset listing "staging" must invalidate the whole
	// template, naming the unreachable environment.
	tpl := `
version: v1
providers:
  - id: p1
    driverType: opentofu
    driverEntry: ./infra
  - id: p2
    driverType: docker
    driverEntry: ./local
environments:
  - id: staging
    label: Staging
    providerId: p1
    capabilities: [app-runtime]
presets:
  - id: cheap
    label: Cheap
    providerId: p2
    environmentIds: [staging]
`
	_, err := NewLoader().LoadFromBytes([]byte(tpl), "deploy.template.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no compatible preset found for environment 'staging'")
}

func TestLoader_Load_DuplicateOutputKey(t *testing.T) {
	tpl := `
version: v1
providers:
  - id: p1
    driverType: opentofu
    driverEntry: ./infra
environments:
  - id: staging
    label: Staging
    providerId: p1
    capabilities: [app-runtime]
    outputs:
      - key: app_url
        type: string
      - key: app_url
        type: string
presets:
  - id: cheap
    label: Cheap
    environmentIds: [staging]
`
	_, err := NewLoader().LoadFromBytes([]byte(tpl), "deploy.template.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate output key "app_url"`)
}

func TestLoader_Load_UnknownCapability(t *testing.T) {
	tpl := `
version: v1
providers:
  - id: p1
    driverType: opentofu
    driverEntry: ./infra
environments:
  - id: staging
    label: Staging
    providerId: p1
    capabilities: [time-travel]
presets:
  - id: cheap
    label: Cheap
    environmentIds: [staging]
`
	_, err := NewLoader().LoadFromBytes([]byte(tpl), "deploy.template.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown capability "time-travel"`)
}

func TestLoader_LoadForProjectType(t *testing.T) {
	templatesDir := t.TempDir()
	dir := filepath.Join(templatesDir, "webapp")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(validTemplate), 0644))

	result, err := NewLoader().LoadForProjectType(templatesDir, "webapp")
	require.NoError(t, err)
	assert.True(t, result.Exists)
	require.NotNil(t, result.Template)

	// Unknown project type reports absence, not an error.
	result, err = NewLoader().LoadForProjectType(templatesDir, "cli-tool")
	require.NoError(t, err)
	assert.False(t, result.Exists)
}

func TestTemplate_CompatiblePresets(t *testing.T) {
	tpl, err := NewLoader().LoadFromBytes([]byte(validTemplate), "deploy.template.yml")
	require.NoError(t, err)

	presets := tpl.CompatiblePresets("staging")
	require.Len(t, presets, 2)
	assert.Equal(t, "cheap", presets[0].ID)
	assert.Equal(t, "standard", presets[1].ID)

	presets = tpl.CompatiblePresets("prod")
	require.Len(t, presets, 1)
	assert.Equal(t, "standard", presets[0].ID)
}

func writeTemplate(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
