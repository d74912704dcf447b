package template

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/terrazzo-io/tzctl/pkg/errors"
	v1 "github.com/terrazzo-io/tzctl/pkg/schema/template/v1"
)

// FileName is the canonical deploy template file name. A ".yaml" suffix is
// accepted as a fallback.
const FileName = "deploy.template.yml"

// LoadResult distinguishes "file absent" from "file present but invalid"
// from "valid": Exists is false when the path holds no template at all, and
// Template is non-nil only when the file parsed and validated.
type LoadResult struct {
	Template *Template
	Exists   bool
}

// Loader loads and validates deploy templates.
type Loader struct {
	parser      *v1.Parser
	validator   *v1.Validator
	transformer *v1.Transformer
}

// NewLoader creates a new deploy template loader.
func NewLoader() *Loader {
	return &Loader{
		parser:      v1.NewParser(),
		validator:   v1.NewValidator(),
		transformer: v1.NewTransformer(),
	}
}

// Load parses and validates the deploy template at path. A missing file is
// not an error; it is reported through LoadResult.Exists.
func (l *Loader) Load(path string) (LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadResult{}, nil
		}
		return LoadResult{}, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", path), err)
	}

	tpl, err := l.LoadFromBytes(data, path)
	if err != nil {
		return LoadResult{Exists: true}, err
	}
	return LoadResult{Template: tpl, Exists: true}, nil
}

// LoadFromBytes parses and validates a deploy template from raw bytes.
func (l *Loader) LoadFromBytes(data []byte, sourcePath string) (*Template, error) {
	schema, err := l.parser.ParseBytes(data)
	if err != nil {
		return nil, errors.ParseError(sourcePath, err)
	}

	if err := l.validator.Validate(schema, sourcePath); err != nil {
		return nil, err
	}

	tpl, err := l.transformer.Transform(schema)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, "failed to transform schema", err)
	}

	tpl.SourcePath = sourcePath
	return tpl, nil
}

// LoadForProjectType locates and loads the deploy template for a project
// type: <templatesDir>/<projectType>/deploy.template.yml, with a .yaml
// fallback.
func (l *Loader) LoadForProjectType(templatesDir, projectType string) (LoadResult, error) {
	dir := filepath.Join(templatesDir, projectType)

	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		alt := filepath.Join(dir, "deploy.template.yaml")
		if _, err := os.Stat(alt); err == nil {
			path = alt
		}
	}

	return l.Load(path)
}
