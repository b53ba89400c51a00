package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RequestProfile carries the fixed parts of every search request. The file
// may be YAML or JSON.
type RequestProfile struct {
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
	Cookies  map[string]string `yaml:"cookies"`
	Body     map[string]any    `yaml:"body"`
}

// LoadProfile reads path; an empty path yields an empty profile.
func LoadProfile(path string) (*RequestProfile, error) {
	p := &RequestProfile{}
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request profile: %w", err)
	}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("parse request profile %s: %w", path, err)
	}
	return p, nil
}
