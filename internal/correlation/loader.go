package correlation

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternsConfig is the top-level YAML document for pattern files.
type PatternsConfig struct {
	Patterns []*Pattern `yaml:"patterns"`
}

// LoadPatternsFromFile loads and validates patterns from a YAML file.
// The returned slice is already in evaluation order.
func LoadPatternsFromFile(path string) ([]*Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patterns file: %w", err)
	}
	defer f.Close()

	return LoadPatterns(f)
}

// LoadPatterns loads and validates patterns from a reader.
func LoadPatterns(r io.Reader) ([]*Pattern, error) {
	var config PatternsConfig
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&config); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse patterns YAML: %w", err)
	}

	seen := make(map[string]struct{}, len(config.Patterns))
	for i, p := range config.Patterns {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid pattern at index %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate pattern id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	sortPatterns(config.Patterns)
	return config.Patterns, nil
}
