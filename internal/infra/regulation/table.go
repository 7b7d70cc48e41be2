package regulation

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"compliance-extraction-engine/internal/domain/model"
)

// Load reads the versioned regulation table from a YAML file at process
// start. The Mapping Engine treats the returned table as read-only.
func Load(path string) (*model.RegulationTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regulation table: %w", err)
	}
	var t model.RegulationTable
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse regulation table: %w", err)
	}
	if t.Version == "" {
		return nil, errors.New("regulation table: version is required")
	}
	if len(t.Articles) == 0 {
		return nil, errors.New("regulation table: no articles")
	}
	seen := make(map[string]bool, len(t.Articles))
	for _, a := range t.Articles {
		if a.ID == "" {
			return nil, errors.New("regulation table: article with empty id")
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("regulation table: duplicate article id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return &t, nil
}
