package registry

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is the structural representation of a registry file.
type Definition struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
	Plan  Plan   `yaml:"plan"`
}

// FromFile parses and validates a registry definition.
func FromFile(name string, contents []byte) (*Registry, Plan, error) {
	var def Definition
	if err := yaml.Unmarshal(contents, &def); err != nil {
		return nil, Plan{}, fmt.Errorf("parsing %s: %w", name, err)
	}
	if def.Name == "" {
		def.Name = name
	}

	r, err := New(def.Steps)
	if err != nil {
		return nil, Plan{}, fmt.Errorf("%s: %w", def.Name, err)
	}
	if err := def.Plan.Validate(r); err != nil {
		return nil, Plan{}, fmt.Errorf("%s: %w", def.Name, err)
	}

	return r, def.Plan, nil
}
