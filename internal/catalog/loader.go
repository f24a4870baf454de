package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlCatalogFile is the top-level YAML structure for catalog files.
type yamlCatalogFile struct {
	Entries []Entry `yaml:"entries"`
}

// LoadFromFile reads and validates a catalog YAML file.
//
// Precondition: path must point to a YAML file with an "entries" list.
// Postcondition: Returns validated entries or a non-nil error.
func LoadFromFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses and validates catalog entries from YAML bytes.
// Duplicate ids are rejected.
//
// Postcondition: Returns validated entries or a non-nil error.
func LoadFromBytes(data []byte) ([]Entry, error) {
	var file yamlCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}

	seen := make(map[int64]bool, len(file.Entries))
	for i, e := range file.Entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("entry %d: duplicate id %d: %w", i, e.ID, ErrInvalidEntry)
		}
		seen[e.ID] = true
	}
	return file.Entries, nil
}
