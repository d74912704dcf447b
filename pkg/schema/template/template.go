// Package template provides the deploy template model: the declarative
// description of a project type's environment topology (providers,
// environments, presets, output contracts) that the deployment orchestrator
// validates against before any action runs.
//
// The model types live in the internal subpackage so the versioned schema
// packages can build the canonical model without importing this package;
// they are re-exported here as aliases, which is what callers use.
package template

import (
	"github.com/terrazzo-io/tzctl/pkg/schema/template/internal"
)

// Capability is a declared functional trait of an environment, used for
// template/preset compatibility matching.
type Capability = internal.Capability

const (
	CapabilityAppRuntime    = internal.CapabilityAppRuntime
	CapabilityDatabase      = internal.CapabilityDatabase
	CapabilityEnvConfig     = internal.CapabilityEnvConfig
	CapabilityDNS           = internal.CapabilityDNS
	CapabilityObjectStorage = internal.CapabilityObjectStorage
	CapabilityCron          = internal.CapabilityCron
)

// Capabilities lists every known capability.
func Capabilities() []Capability {
	return internal.Capabilities()
}

// OutputType is the declared type of an environment output.
type OutputType = internal.OutputType

const (
	OutputTypeString    = internal.OutputTypeString
	OutputTypeNumber    = internal.OutputTypeNumber
	OutputTypeBoolean   = internal.OutputTypeBoolean
	OutputTypeJSON      = internal.OutputTypeJSON
	OutputTypeSecretRef = internal.OutputTypeSecretRef
)

// Provider names a provisioning backend implementation.
type Provider = internal.Provider

// OutputSpec declares a value an environment's provider must produce.
type OutputSpec = internal.OutputSpec

// Environment describes one deployable target.
type Environment = internal.Environment

// Preset is a named bundle of constraint overrides applicable to one or more
// environments.
type Preset = internal.Preset

// Template is one project type's validated deploy template.
type Template = internal.Template

// Compatible reports whether the preset can materialize the environment: the
// preset must list the environment, and its provider (if pinned) must match
// the environment's provider.
func Compatible(preset Preset, env Environment) bool {
	return internal.Compatible(preset, env)
}
