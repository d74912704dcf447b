package v1

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parser parses v1 deploy template schemas.
type Parser struct{}

// NewParser creates a new v1 parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseBytes parses a deploy template from raw bytes. YAML and JSON are both
// accepted; JSON is a YAML subset.
func (p *Parser) ParseBytes(data []byte) (*SchemaV1, error) {
	schema := &SchemaV1{}
	if err := yaml.Unmarshal(data, schema); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	return schema, nil
}
