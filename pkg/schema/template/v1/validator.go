package v1

import (
	"fmt"
	"regexp"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/schema/template/internal"
)

var (
	providerIDPattern    = regexp.MustCompile(`^[a-z][a-z0-9-]{1,63}$`)
	environmentIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,31}$`)
)

// Validator validates v1 deploy template schemas. Validation is fail-fast:
// the first violated rule is returned and nothing further is checked, so a
// template error always points at exactly one offender.
type Validator struct{}

// NewValidator creates a new v1 validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks the schema in declaration order: version, providers,
// environments (with outputs), presets, then the cross-reference invariants.
// sourcePath is included in every error for operator context.
func (v *Validator) Validate(schema *SchemaV1, sourcePath string) error {
	if schema.Version != SupportedVersion {
		return fail(sourcePath, "version", fmt.Sprintf("unsupported schema version %q (expected %q)", schema.Version, SupportedVersion))
	}

	if err := v.validateProviders(schema, sourcePath); err != nil {
		return err
	}
	if err := v.validateEnvironments(schema, sourcePath); err != nil {
		return err
	}
	if err := v.validatePresets(schema, sourcePath); err != nil {
		return err
	}
	return v.validateCrossReferences(schema, sourcePath)
}

func (v *Validator) validateProviders(schema *SchemaV1, sourcePath string) error {
	if len(schema.Providers) == 0 {
		return fail(sourcePath, "providers", "at least one provider is required")
	}

	seen := make(map[string]bool)
	for i, p := range schema.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		if !providerIDPattern.MatchString(p.ID) {
			return fail(sourcePath, field+".id", fmt.Sprintf("id %q must match %s", p.ID, providerIDPattern.String()))
		}
		if seen[p.ID] {
			return fail(sourcePath, field+".id", fmt.Sprintf("duplicate provider id %q", p.ID))
		}
		seen[p.ID] = true

		if p.DriverType == "" {
			return fail(sourcePath, field+".driverType", "driverType is required")
		}
		if p.DriverEntry == "" {
			return fail(sourcePath, field+".driverEntry", "driverEntry is required")
		}
	}
	return nil
}

func (v *Validator) validateEnvironments(schema *SchemaV1, sourcePath string) error {
	if len(schema.Environments) == 0 {
		return fail(sourcePath, "environments", "at least one environment is required")
	}

	seen := make(map[string]bool)
	for i, e := range schema.Environments {
		field := fmt.Sprintf("environments[%d]", i)
		if !environmentIDPattern.MatchString(e.ID) {
			return fail(sourcePath, field+".id", fmt.Sprintf("id %q must match %s", e.ID, environmentIDPattern.String()))
		}
		if seen[e.ID] {
			return fail(sourcePath, field+".id", fmt.Sprintf("duplicate environment id %q", e.ID))
		}
		seen[e.ID] = true

		if e.Label == "" {
			return fail(sourcePath, field+".label", "label is required")
		}
		if len(e.Capabilities) == 0 {
			return fail(sourcePath, field+".capabilities", "at least one capability is required")
		}
		for j, c := range e.Capabilities {
			if !internal.Capability(c).Valid() {
				return fail(sourcePath, fmt.Sprintf("%s.capabilities[%d]", field, j), fmt.Sprintf("unknown capability %q", c))
			}
		}

		if err := v.validateOutputs(e, field, sourcePath); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) validateOutputs(env EnvironmentV1, envField, sourcePath string) error {
	seen := make(map[string]bool)
	for i, out := range env.Outputs {
		field := fmt.Sprintf("%s.outputs[%d]", envField, i)
		if out.Key == "" {
			return fail(sourcePath, field+".key", "key is required")
		}
		if seen[out.Key] {
			return fail(sourcePath, field+".key", fmt.Sprintf("duplicate output key %q", out.Key))
		}
		seen[out.Key] = true

		if !internal.OutputType(out.Type).Valid() {
			return fail(sourcePath, field+".type", fmt.Sprintf("unknown output type %q", out.Type))
		}
	}
	return nil
}

func (v *Validator) validatePresets(schema *SchemaV1, sourcePath string) error {
	seen := make(map[string]bool)
	for i, p := range schema.Presets {
		field := fmt.Sprintf("presets[%d]", i)
		if p.ID == "" {
			return fail(sourcePath, field+".id", "id is required")
		}
		if seen[p.ID] {
			return fail(sourcePath, field+".id", fmt.Sprintf("duplicate preset id %q", p.ID))
		}
		seen[p.ID] = true

		if p.Label == "" {
			return fail(sourcePath, field+".label", "label is required")
		}
		if len(p.EnvironmentIDs) == 0 {
			return fail(sourcePath, field+".environmentIds", "at least one environment id is required")
		}
	}
	return nil
}

// validateCrossReferences checks the three referential invariants:
// environment→provider, preset→environment/provider, and that every
// environment is reachable by at least one compatible preset.
func (v *Validator) validateCrossReferences(schema *SchemaV1, sourcePath string) error {
	providers := make(map[string]bool)
	for _, p := range schema.Providers {
		providers[p.ID] = true
	}
	environments := make(map[string]string) // id -> provider id
	for _, e := range schema.Environments {
		environments[e.ID] = e.ProviderID
	}

	for i, e := range schema.Environments {
		if !providers[e.ProviderID] {
			return fail(sourcePath, fmt.Sprintf("environments[%d].providerId", i), fmt.Sprintf("references undeclared provider %q", e.ProviderID))
		}
	}

	for i, p := range schema.Presets {
		field := fmt.Sprintf("presets[%d]", i)
		for j, envID := range p.EnvironmentIDs {
			if _, ok := environments[envID]; !ok {
				return fail(sourcePath, fmt.Sprintf("%s.environmentIds[%d]", field, j), fmt.Sprintf("references undeclared environment %q", envID))
			}
		}
		if p.ProviderID != "" && !providers[p.ProviderID] {
			return fail(sourcePath, field+".providerId", fmt.Sprintf("references undeclared provider %q", p.ProviderID))
		}
	}

	for i, e := range schema.Environments {
		if !hasCompatiblePreset(schema, e) {
			return fail(sourcePath, fmt.Sprintf("environments[%d]", i), fmt.Sprintf("no compatible preset found for environment '%s'", e.ID))
		}
	}

	return nil
}

func hasCompatiblePreset(schema *SchemaV1, env EnvironmentV1) bool {
	for _, p := range schema.Presets {
		if p.ProviderID != "" && p.ProviderID != env.ProviderID {
			continue
		}
		for _, envID := range p.EnvironmentIDs {
			if envID == env.ID {
				return true
			}
		}
	}
	return false
}

func fail(sourcePath, field, message string) error {
	return errors.ValidationError(
		fmt.Sprintf("%s: %s: %s", sourcePath, field, message),
		map[string]interface{}{
			"file":  sourcePath,
			"field": field,
		},
	)
}
