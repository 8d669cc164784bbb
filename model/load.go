package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// declFile is the on-disk shape of a model declaration file. A file may
// declare a single model or a list of them.
type declFile struct {
	Model  *Model   `json:"model,omitempty" yaml:"model,omitempty"`
	Models []*Model `json:"models,omitempty" yaml:"models,omitempty"`
}

func (d *declFile) all() []*Model {
	if d.Model != nil {
		return append([]*Model{d.Model}, d.Models...)
	}
	return d.Models
}

// ParseYAML decodes one or more model declarations from YAML.
func ParseYAML(data []byte) ([]*Model, error) {
	var file declFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse model yaml: %w", err)
	}
	models := file.all()
	if len(models) == 0 {
		return nil, fmt.Errorf("model yaml declares no models")
	}
	for _, m := range models {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return models, nil
}

// LoadYAML reads model declarations from a YAML file.
func LoadYAML(path string) ([]*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	return ParseYAML(data)
}
