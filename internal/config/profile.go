package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/pagemap-facets/internal/models"
)

//go:embed profile.yaml
var defaultProfile []byte

// LoadProfile reads the topic/unit profile from path, or the built-in
// schema.org profile when path is empty.
func LoadProfile(path string) (models.Profile, error) {
	data := defaultProfile
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return models.Profile{}, fmt.Errorf("read profile: %w", err)
		}
		data = raw
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a YAML profile.
func ParseProfile(data []byte) (models.Profile, error) {
	var p models.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return models.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return models.Profile{}, fmt.Errorf("invalid profile: %w", err)
	}
	if p.Units == nil {
		p.Units = map[string]string{}
	}
	return p, nil
}
