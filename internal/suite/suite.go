// File: internal/suite/suite.go
// Description: Loads test suites from JSON files and validates them before a
// run. Missing test IDs are filled in so reports always have a stable key.

package suite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/voidwalkr/restitch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load reads and validates a suite file.
func Load(path string) (schemas.Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schemas.Suite{}, fmt.Errorf("failed to read suite file: %w", err)
	}

	var s schemas.Suite
	if err := json.Unmarshal(data, &s); err != nil {
		return schemas.Suite{}, fmt.Errorf("failed to parse suite file %s: %w", path, err)
	}

	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := validate(&s); err != nil {
		return schemas.Suite{}, fmt.Errorf("invalid suite %s: %w", s.Name, err)
	}
	return s, nil
}

func validate(s *schemas.Suite) error {
	if len(s.Tests) == 0 {
		return fmt.Errorf("suite contains no tests")
	}

	seen := make(map[string]struct{}, len(s.Tests))
	for i := range s.Tests {
		tc := &s.Tests[i]
		if tc.ID == "" {
			tc.ID = uuid.New().String()
		}
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("duplicate test id %q", tc.ID)
		}
		seen[tc.ID] = struct{}{}

		if len(tc.Steps) == 0 {
			return fmt.Errorf("test %q has no steps", tc.ID)
		}
		for j, step := range tc.Steps {
			if strings.TrimSpace(step) == "" {
				return fmt.Errorf("test %q step %d is empty", tc.ID, j)
			}
		}
	}
	return nil
}
