// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"vetting-engine/internal/common/validation"
)

//go:embed activities.json
var builtin []byte

// Load returns the activity registry compiled into the binary.
func Load() (*ActivityRegistry, error) {
	return Parse(builtin)
}

// LoadRegistry reads a registry from disk, for deployments that override
// the built-in contracts.
func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse activity registry: %w", err)
	}
	seen := make(map[string]bool, len(reg.Activities))
	for _, a := range reg.Activities {
		if a.TaskType == "" {
			return nil, fmt.Errorf("activity %q has no taskType", a.ID)
		}
		if seen[a.TaskType] {
			return nil, fmt.Errorf("duplicate taskType %q", a.TaskType)
		}
		seen[a.TaskType] = true
	}
	return &reg, nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// InputSchema compiles the input contract of taskType.
func (r *ActivityRegistry) InputSchema(taskType string) (*validation.Schema, error) {
	a, ok := r.Find(taskType)
	if !ok {
		return nil, fmt.Errorf("no activity registered for %q", taskType)
	}
	if a.InputSchema == nil {
		return nil, fmt.Errorf("activity %q has no input schema", taskType)
	}
	return validation.CompileSchema(a.InputSchema)
}
