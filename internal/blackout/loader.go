package blackout

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// BlackoutsConfig is the top-level YAML document for blackout files.
type BlackoutsConfig struct {
	Blackouts []*Blackout `yaml:"blackouts"`
}

// LoadBlackoutsFromFile loads and validates blackouts from a YAML
// file. The returned slice is already in match order.
func LoadBlackoutsFromFile(path string) ([]*Blackout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open blackouts file: %w", err)
	}
	defer f.Close()

	return LoadBlackouts(f)
}

// LoadBlackouts loads and validates blackouts from a reader.
func LoadBlackouts(r io.Reader) ([]*Blackout, error) {
	var config BlackoutsConfig
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse blackouts YAML: %w", err)
	}

	seen := make(map[string]struct{}, len(config.Blackouts))
	for i, b := range config.Blackouts {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("invalid blackout at index %d: %w", i, err)
		}
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("duplicate blackout id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
	}

	sortBlackouts(config.Blackouts)
	return config.Blackouts, nil
}
