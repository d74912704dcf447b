// Package v1 implements the v1 deploy template schema.
package v1

// SupportedVersion is the only schema version this loader accepts.
const SupportedVersion = "v1"

// SchemaV1 represents the v1 deploy template file schema.
type SchemaV1 struct {
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// Providers declare the provisioning backends environments can bind to.
	Providers []ProviderV1 `yaml:"providers,omitempty" json:"providers,omitempty"`

	// Environments declare the deployable targets.
	Environments []EnvironmentV1 `yaml:"environments,omitempty" json:"environments,omitempty"`

	// Presets declare constraint bundles applicable to environments.
	Presets []PresetV1 `yaml:"presets,omitempty" json:"presets,omitempty"`
}

// ProviderV1 represents a provider declaration in the v1 schema.
type ProviderV1 struct {
	ID string `yaml:"id" json:"id"`

	// DriverType selects the provisioning adapter (e.g. "opentofu").
	DriverType string `yaml:"driverType" json:"driverType"`

	// DriverEntry is the provisioning source directory, relative to the
	// template file.
	DriverEntry string `yaml:"driverEntry" json:"driverEntry"`
}

// EnvironmentV1 represents an environment declaration in the v1 schema.
type EnvironmentV1 struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`

	// ProviderID must reference a declared provider.
	ProviderID string `yaml:"providerId" json:"providerId"`

	// Capabilities must be non-empty and drawn from the known set.
	Capabilities []string `yaml:"capabilities" json:"capabilities"`

	// Constraints are default settings for the environment.
	Constraints map[string]interface{} `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	// Outputs declare the values the provider must produce.
	Outputs []OutputV1 `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// OutputV1 represents an output declaration in the v1 schema.
type OutputV1 struct {
	Key       string `yaml:"key" json:"key"`
	Type      string `yaml:"type" json:"type"`
	Sensitive bool   `yaml:"sensitive,omitempty" json:"sensitive,omitempty"`
	Rotatable bool   `yaml:"rotatable,omitempty" json:"rotatable,omitempty"`

	// Required defaults to true when omitted.
	Required *bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Default, when present, satisfies the output contract even if the
	// driver does not produce the value.
	Default interface{} `yaml:"default,omitempty" json:"default,omitempty"`
}

// PresetV1 represents a preset declaration in the v1 schema.
type PresetV1 struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// EnvironmentIDs lists the environments the preset applies to.
	EnvironmentIDs []string `yaml:"environmentIds" json:"environmentIds"`

	// ProviderID, when set, restricts the preset to environments bound to
	// that provider.
	ProviderID string `yaml:"providerId,omitempty" json:"providerId,omitempty"`

	// Constraints override environment constraints during materialization.
	Constraints map[string]interface{} `yaml:"constraints,omitempty" json:"constraints,omitempty"`
}
