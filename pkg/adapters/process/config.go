package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProcessConfig represents an external function backed by a local command.
type ProcessConfig struct {
	// Name is the function name steps refer to through nqName.
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of functions.yaml
type ConfigFile struct {
	Functions []ProcessConfig `yaml:"functions" json:"functions"`
}

// LoadFunctions reads a configuration file (YAML or JSON) and returns a map of function names to configs.
// A missing file yields an empty map.
func LoadFunctions(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read functions config: %w", err)
	}

	var cfg ConfigFile
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		// Default to YAML
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	functions := make(map[string]ProcessConfig)
	for _, fn := range cfg.Functions {
		if fn.Name == "" || fn.Command == "" {
			continue
		}
		functions[fn.Name] = fn
	}

	return functions, nil
}
