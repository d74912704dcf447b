package v1

import (
	"github.com/terrazzo-io/tzctl/pkg/schema/template/internal"
)

// Transformer converts a validated v1 schema into the canonical template
// model.
type Transformer struct{}

// NewTransformer creates a new v1 transformer.
func NewTransformer() *Transformer {
	return &Transformer{}
}

// Transform maps the file schema onto the canonical model. The schema must
// already have passed validation.
func (t *Transformer) Transform(schema *SchemaV1) (*internal.Template, error) {
	result := &internal.Template{
		Version: schema.Version,
	}

	for _, p := range schema.Providers {
		result.Providers = append(result.Providers, internal.Provider{
			ID:          p.ID,
			DriverType:  p.DriverType,
			DriverEntry: p.DriverEntry,
		})
	}

	for _, e := range schema.Environments {
		env := internal.Environment{
			ID:          e.ID,
			Label:       e.Label,
			ProviderID:  e.ProviderID,
			Constraints: e.Constraints,
		}
		for _, c := range e.Capabilities {
			env.Capabilities = append(env.Capabilities, internal.Capability(c))
		}
		for _, out := range e.Outputs {
			// Absent required means required.
			required := out.Required == nil || *out.Required
			env.Outputs = append(env.Outputs, internal.OutputSpec{
				Key:       out.Key,
				Type:      internal.OutputType(out.Type),
				Sensitive: out.Sensitive,
				Rotatable: out.Rotatable,
				Required:  required,
				Default:   out.Default,
			})
		}
		result.Environments = append(result.Environments, env)
	}

	for _, p := range schema.Presets {
		result.Presets = append(result.Presets, internal.Preset{
			ID:             p.ID,
			Label:          p.Label,
			Description:    p.Description,
			EnvironmentIDs: p.EnvironmentIDs,
			ProviderID:     p.ProviderID,
			Constraints:    p.Constraints,
		})
	}

	return result, nil
}
