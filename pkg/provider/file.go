package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DecodeConfig turns a generic map (decoded YAML or JSON) into a configuration.
func DecodeConfig(raw map[string]any) (*domain.PipelineConfiguration, error) {
	var cfg domain.PipelineConfiguration
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	return &cfg, nil
}

// LoadFile parses one YAML provider file.
func LoadFile(path string) (*domain.PipelineConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", domain.ErrConfiguration, filepath.Base(path), err)
	}
	cfg, err := DecodeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// LoadDir registers every *.yaml / *.yml file of dir.
// A file without a provider name is registered under its base name.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read providers dir: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := LoadFile(path)
		if err != nil {
			return count, err
		}
		if cfg.Provider == "" {
			cfg.Provider = strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		}
		if err := r.RegisterConfig(cfg); err != nil {
			return count, err
		}
		r.logger.Debug("Provider file loaded", "provider", cfg.Provider, "path", path)
		count++
	}
	return count, nil
}

// Static returns a ProviderFunc that always yields a copy of cfg.
func Static(cfg *domain.PipelineConfiguration) ProviderFunc {
	snapshot := cfg.Clone()
	return func(context.Context) (*domain.PipelineConfiguration, error) {
		return snapshot.Clone(), nil
	}
}
