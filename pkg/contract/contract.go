// Package contract statically cross-checks a provider's provisioning sources
// against the outputs its environments declare. It runs before
// materialization so template/driver drift is caught before an operator
// attempts a deploy.
package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	"github.com/terrazzo-io/tzctl/pkg/schema/template"
)

// StackFileName is the declaration file for docker drivers.
const StackFileName = "stack.yml"

// declaredOutput is one output identifier discovered in a driver's sources.
type declaredOutput struct {
	// sensitive holds the literal sensitive flag when the source declares
	// one; nil when absent or not a literal.
	sensitive *bool
}

// Result carries the non-fatal findings of a contract check.
type Result struct {
	// Warnings are mismatches that do not invalidate the contract, such as
	// a sensitivity flag disagreeing between template and driver.
	Warnings []string
}

// Validator checks output contracts for a deploy template.
type Validator struct {
	template *template.Template

	// baseDir resolves provider driver entries; it is the directory the
	// template file was loaded from.
	baseDir string
}

// NewValidator creates a contract validator for the given template. Driver
// entries are resolved relative to baseDir.
func NewValidator(tpl *template.Template, baseDir string) *Validator {
	return &Validator{template: tpl, baseDir: baseDir}
}

// ValidateAll checks every provider that has at least one bound environment.
func (v *Validator) ValidateAll() (*Result, error) {
	result := &Result{}
	for _, p := range v.template.Providers {
		if len(v.template.EnvironmentsForProvider(p.ID)) == 0 {
			continue
		}
		r, err := v.ValidateProvider(p.ID)
		if err != nil {
			return nil, err
		}
		result.Warnings = append(result.Warnings, r.Warnings...)
	}
	return result, nil
}

// ValidateProvider discovers the outputs the provider's driver sources
// declare and fails if any environment bound to the provider requires an
// output (no default) the driver does not produce.
func (v *Validator) ValidateProvider(providerID string) (*Result, error) {
	provider, ok := v.template.Provider(providerID)
	if !ok {
		return nil, errors.NotFoundError("provider", providerID)
	}

	entryDir := provider.DriverEntry
	if !filepath.IsAbs(entryDir) {
		entryDir = filepath.Join(v.baseDir, entryDir)
	}

	declared, err := discoverOutputs(provider.DriverType, entryDir)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, env := range v.template.EnvironmentsForProvider(provider.ID) {
		var missing []string
		for _, spec := range env.Outputs {
			decl, ok := declared[spec.Key]
			if !ok {
				if spec.Default == nil {
					missing = append(missing, spec.Key)
				}
				continue
			}
			if decl.sensitive != nil && *decl.sensitive != spec.Sensitive {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"provider %q output %q: sensitive is %v in the driver but %v in environment %q",
					provider.ID, spec.Key, *decl.sensitive, spec.Sensitive, env.ID))
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return nil, errors.New(errors.ErrCodeContract, fmt.Sprintf(
				"provider %q does not produce output(s) %s required by environment %q",
				provider.ID, strings.Join(missing, ", "), env.ID)).
				WithDetail("provider", provider.ID).
				WithDetail("environment", env.ID).
				WithDetail("missing", missing)
		}
	}

	return result, nil
}

// discoverOutputs scans a driver's sources for output declarations. The
// syntax is per driver type: output blocks in *.tf files for OpenTofu and
// Terraform, the top-level outputs map in stack.yml for docker.
func discoverOutputs(driverType, entryDir string) (map[string]declaredOutput, error) {
	switch driverType {
	case "opentofu", "terraform":
		return discoverTFOutputs(entryDir)
	case "docker":
		return discoverStackOutputs(entryDir)
	default:
		return nil, errors.New(errors.ErrCodeContract, fmt.Sprintf("no output discovery for driver type %q", driverType))
	}
}

func discoverTFOutputs(entryDir string) (map[string]declaredOutput, error) {
	paths, err := filepath.Glob(filepath.Join(entryDir, "*.tf"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeContract, fmt.Sprintf("failed to scan %s", entryDir), err)
	}
	if len(paths) == 0 {
		return nil, errors.New(errors.ErrCodeContract, fmt.Sprintf("no .tf files found in %s", entryDir))
	}
	sort.Strings(paths)

	parser := hclparse.NewParser()
	outputs := make(map[string]declaredOutput)

	bodySchema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "output", LabelNames: []string{"name"}},
		},
	}
	outputSchema := &hcl.BodySchema{
		Attributes: []hcl.AttributeSchema{
			{Name: "value"},
			{Name: "sensitive"},
			{Name: "description"},
		},
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeContract, fmt.Sprintf("failed to read %s", path), err)
		}

		file, diags := parser.ParseHCL(data, path)
		if diags.HasErrors() {
			return nil, errors.New(errors.ErrCodeContract, fmt.Sprintf("failed to parse %s: %s", path, diags.Error()))
		}

		// PartialContent tolerates the resource/variable/provider blocks
		// we are not interested in.
		content, _, _ := file.Body.PartialContent(bodySchema)
		for _, block := range content.Blocks.OfType("output") {
			name := block.Labels[0]
			decl := declaredOutput{}

			attrs, _, _ := block.Body.PartialContent(outputSchema)
			if attr, ok := attrs.Attributes["sensitive"]; ok {
				// Only literal booleans are considered; expressions
				// depending on variables cannot be evaluated statically.
				if val, valDiags := attr.Expr.Value(nil); !valDiags.HasErrors() && val.Type() == cty.Bool {
					sensitive := val.True()
					decl.sensitive = &sensitive
				}
			}

			outputs[name] = decl
		}
	}

	return outputs, nil
}

func discoverStackOutputs(entryDir string) (map[string]declaredOutput, error) {
	path := filepath.Join(entryDir, StackFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeContract, fmt.Sprintf("failed to read %s", path), err)
	}

	var stack struct {
		Outputs map[string]struct {
			Sensitive *bool `yaml:"sensitive"`
		} `yaml:"outputs"`
	}
	if err := yaml.Unmarshal(data, &stack); err != nil {
		return nil, errors.Wrap(errors.ErrCodeContract, fmt.Sprintf("failed to parse %s", path), err)
	}

	outputs := make(map[string]declaredOutput)
	for name, out := range stack.Outputs {
		outputs[name] = declaredOutput{sensitive: out.Sensitive}
	}
	return outputs, nil
}
