package app

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/go-plugr/plugr/plugins"
)

// Manifest is the YAML declaration of one plugin found in the plugin
// directory. The constructor name selects a factory creator; when empty
// the plugin type is used as the constructor name.
type Manifest struct {
	Name         string               `yaml:"name"`
	Version      string               `yaml:"version"`
	Author       string               `yaml:"author"`
	Description  string               `yaml:"description"`
	Type         string               `yaml:"type"`
	Constructor  string               `yaml:"constructor"`
	Dependencies []ManifestDependency `yaml:"dependencies"`
	Config       map[string]any       `yaml:"config"`
}

// ManifestDependency declares one dependency edge in a manifest.
type ManifestDependency struct {
	Name       string `yaml:"name"`
	Constraint string `yaml:"constraint"`
	Optional   bool   `yaml:"optional"`
}

// ParseManifest decodes and validates a manifest document.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Name == "" {
		return Manifest{}, fmt.Errorf("manifest: missing plugin name")
	}
	if m.Version == "" {
		return Manifest{}, fmt.Errorf("manifest %s: missing version", m.Name)
	}
	return m, nil
}

// ConstructorName returns the factory constructor the manifest selects.
func (m Manifest) ConstructorName() string {
	if m.Constructor != "" {
		return m.Constructor
	}
	return m.Type
}

// Metadata converts the manifest into plugin metadata.
func (m Manifest) Metadata() plugins.PluginMetadata {
	deps := make([]plugins.DependencySpec, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		deps = append(deps, plugins.DependencySpec{
			Name:       d.Name,
			Constraint: d.Constraint,
			Optional:   d.Optional,
		})
	}
	return plugins.PluginMetadata{
		Name:         m.Name,
		Version:      m.Version,
		Author:       m.Author,
		Description:  m.Description,
		Type:         plugins.PluginType(m.Type),
		Dependencies: deps,
		Config:       m.Config,
	}
}
