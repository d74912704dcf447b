// Package project loads and saves the per-project configuration file that
// names the project, points at its deploy template type, and records its
// configured releases.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/go-containerregistry/pkg/name"
	"gopkg.in/yaml.v3"

	"github.com/terrazzo-io/tzctl/pkg/errors"
)

// FileName is the project configuration file, found at the project root.
const FileName = "tz.project.yml"

// ReleaseRef is one configured release of the project.
type ReleaseRef struct {
	// Tag is the release tag, e.g. "v1.4.2".
	Tag string `yaml:"tag" json:"tag"`

	// ImageRef is the container image reference for the release, e.g.
	// "registry.example.com/shop/api:v1.4.2".
	ImageRef string `yaml:"imageRef,omitempty" json:"imageRef,omitempty"`
}

// Config is the contents of tz.project.yml.
type Config struct {
	// Name identifies the project in the state backend. Defaults to the
	// project directory's base name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Type selects the deploy template (deploy templates are looked up by
	// project type). Defaults to "default".
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Path optionally points at the application source within the project.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Region and Backend are provisioning hints merged into the workspace
	// constraints under the "region" and "backend" keys.
	Region  string `yaml:"region,omitempty" json:"region,omitempty"`
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`

	// Releases lists the configured releases, oldest first.
	Releases []ReleaseRef `yaml:"releases,omitempty" json:"releases,omitempty"`

	// ActiveRelease pins the release to deploy. When empty the newest
	// configured release (or newest git tag) is used.
	ActiveRelease string `yaml:"activeRelease,omitempty" json:"activeRelease,omitempty"`
}

// Load reads the project config from dir. A missing file yields a config
// with defaults applied rather than an error, so un-configured projects
// still resolve a name and type.
func Load(dir string) (*Config, error) {
	cfg := &Config{}

	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}
	if err == nil {
		if uerr := yaml.Unmarshal(data, cfg); uerr != nil {
			return nil, errors.ParseError(path, uerr)
		}
	}

	cfg.applyDefaults(dir)
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config back to dir.
func Save(dir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults(dir string) {
	if c.Name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		c.Name = filepath.Base(abs)
	}
	if c.Type == "" {
		c.Type = "default"
	}
}

func (c *Config) validate(path string) error {
	seen := make(map[string]bool, len(c.Releases))
	for i, rel := range c.Releases {
		field := fmt.Sprintf("releases[%d]", i)
		if rel.Tag == "" {
			return fail(path, field+".tag", "release is missing a tag")
		}
		if seen[rel.Tag] {
			return fail(path, field+".tag", fmt.Sprintf("duplicate release tag %q", rel.Tag))
		}
		seen[rel.Tag] = true

		if rel.ImageRef != "" {
			if _, err := name.ParseReference(rel.ImageRef); err != nil {
				return fail(path, field+".imageRef", fmt.Sprintf("invalid image reference: %v", err))
			}
		}
	}

	if c.ActiveRelease != "" && !seen[c.ActiveRelease] {
		return fail(path, "activeRelease", fmt.Sprintf("activeRelease %q does not match any configured release", c.ActiveRelease))
	}
	return nil
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

// Release returns the configured release with the given tag.
func (c *Config) Release(tag string) (ReleaseRef, bool) {
	for _, rel := range c.Releases {
		if rel.Tag == tag {
			return rel, true
		}
	}
	return ReleaseRef{}, false
}
