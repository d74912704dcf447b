// Package internal holds the canonical deploy template model. Both the
// template facade and the versioned schema packages import it, which keeps
// the version packages free of a dependency back onto the facade.
package internal

// Capability is a declared functional trait of an environment, used for
// template/preset compatibility matching.
type Capability string

const (
	CapabilityAppRuntime    Capability = "app-runtime"
	CapabilityDatabase      Capability = "database"
	CapabilityEnvConfig     Capability = "env-config"
	CapabilityDNS           Capability = "dns"
	CapabilityObjectStorage Capability = "object-storage"
	CapabilityCron          Capability = "cron"
)

// Capabilities lists every known capability.
func Capabilities() []Capability {
	return []Capability{
		CapabilityAppRuntime,
		CapabilityDatabase,
		CapabilityEnvConfig,
		CapabilityDNS,
		CapabilityObjectStorage,
		CapabilityCron,
	}
}

// Valid reports whether the capability is a known one.
func (c Capability) Valid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// OutputType is the declared type of an environment output.
type OutputType string

const (
	OutputTypeString    OutputType = "string"
	OutputTypeNumber    OutputType = "number"
	OutputTypeBoolean   OutputType = "boolean"
	OutputTypeJSON      OutputType = "json"
	OutputTypeSecretRef OutputType = "secret-ref"
)

// Valid reports whether the output type is a known one.
func (t OutputType) Valid() bool {
	switch t {
	case OutputTypeString, OutputTypeNumber, OutputTypeBoolean, OutputTypeJSON, OutputTypeSecretRef:
		return true
	}
	return false
}

// Provider names a provisioning backend implementation.
type Provider struct {
	// ID uniquely identifies the provider within the template.
	ID string

	// DriverType selects the provisioning adapter (e.g. "opentofu", "docker").
	DriverType string

	// DriverEntry is the provisioning source location, relative to the
	// template file's directory.
	DriverEntry string
}

// OutputSpec declares a value an environment's provider must produce.
type OutputSpec struct {
	Key       string
	Type      OutputType
	Sensitive bool
	Rotatable bool

	// Required defaults to true in the file schema.
	Required bool

	// Default, when non-nil, satisfies the output contract without the
	// driver producing the value.
	Default interface{}
}

// Environment describes one deployable target.
type Environment struct {
	ID           string
	Label        string
	ProviderID   string
	Capabilities []Capability
	Constraints  map[string]interface{}
	Outputs      []OutputSpec
}

// Output returns the output spec with the given key, if declared.
func (e *Environment) Output(key string) (OutputSpec, bool) {
	for _, out := range e.Outputs {
		if out.Key == key {
			return out, true
		}
	}
	return OutputSpec{}, false
}

// Preset is a named bundle of constraint overrides applicable to one or more
// environments.
type Preset struct {
	ID             string
	Label          string
	Description    string
	EnvironmentIDs []string
	ProviderID     string
	Constraints    map[string]interface{}
}

// AppliesTo reports whether the preset lists the given environment.
func (p *Preset) AppliesTo(envID string) bool {
	for _, id := range p.EnvironmentIDs {
		if id == envID {
			return true
		}
	}
	return false
}

// Template is one project type's validated deploy template.
type Template struct {
	Version      string
	Providers    []Provider
	Environments []Environment
	Presets      []Preset

	// SourcePath is where the template was loaded from.
	SourcePath string
}

// Provider returns the declared provider with the given id.
func (t *Template) Provider(id string) (Provider, bool) {
	for _, p := range t.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// Environment returns the declared environment with the given id.
func (t *Template) Environment(id string) (Environment, bool) {
	for _, e := range t.Environments {
		if e.ID == id {
			return e, true
		}
	}
	return Environment{}, false
}

// Preset returns the declared preset with the given id.
func (t *Template) Preset(id string) (Preset, bool) {
	for _, p := range t.Presets {
		if p.ID == id {
			return p, true
		}
	}
	return Preset{}, false
}

// Compatible reports whether the preset can materialize the environment: the
// preset must list the environment, and its provider (if pinned) must match
// the environment's provider.
func Compatible(preset Preset, env Environment) bool {
	if !preset.AppliesTo(env.ID) {
		return false
	}
	return preset.ProviderID == "" || preset.ProviderID == env.ProviderID
}

// CompatiblePresets returns the presets that can materialize the environment,
// in declaration order.
func (t *Template) CompatiblePresets(envID string) []Preset {
	env, ok := t.Environment(envID)
	if !ok {
		return nil
	}

	var presets []Preset
	for _, p := range t.Presets {
		if Compatible(p, env) {
			presets = append(presets, p)
		}
	}
	return presets
}

// EnvironmentsForProvider returns the environments bound to the given
// provider, in declaration order.
func (t *Template) EnvironmentsForProvider(providerID string) []Environment {
	var envs []Environment
	for _, e := range t.Environments {
		if e.ProviderID == providerID {
			envs = append(envs, e)
		}
	}
	return envs
}
