// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// LoadRegistry reads a registry file and validates it.
func LoadRegistry(path string) (*ModuleRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ModuleRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// LoadOrDefault falls back to the built-in registry when path does not exist.
func LoadOrDefault(path string) (*ModuleRegistry, error) {
	reg, err := LoadRegistry(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return reg, err
}

func Save(reg *ModuleRegistry, path string) error {
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// Validate checks ids are unique and non-empty and that every dependency names a known module.
// Dependency cycles are not rejected here; the router reports them at planning time.
func (r *ModuleRegistry) Validate() error {
	if len(r.Modules) == 0 {
		return fmt.Errorf("registry contains no modules")
	}
	ids := make(map[string]bool, len(r.Modules))
	for _, m := range r.Modules {
		if m.ID == "" {
			return fmt.Errorf("module missing required field: id")
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate module id: %s", m.ID)
		}
		ids[m.ID] = true
	}
	for _, m := range r.Modules {
		for _, dep := range m.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("module %s depends on unknown module %s", m.ID, dep)
			}
			if dep == m.ID {
				return fmt.Errorf("module %s depends on itself", m.ID)
			}
		}
	}
	return nil
}

// FindCycle returns one dependency cycle as a path of ids, or nil.
func (r *ModuleRegistry) FindCycle() []string {
	deps := r.Dependencies()
	const (
		white = iota
		grey
		black
	)
	color := map[string]int{}
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, d := range deps[id] {
			switch color[d] {
			case grey:
				for i, s := range stack {
					if s == d {
						cycle = append(append([]string{}, stack[i:]...), d)
						return true
					}
				}
			case white:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	ids := make([]string, 0, len(deps))
	for id := range deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

func (r *ModuleRegistry) Get(id string) (ModuleEntry, bool) {
	for _, m := range r.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return ModuleEntry{}, false
}

// Dependencies maps each module id to the ids it depends on.
func (r *ModuleRegistry) Dependencies() map[string][]string {
	out := make(map[string][]string, len(r.Modules))
	for _, m := range r.Modules {
		out[m.ID] = append([]string(nil), m.DependsOn...)
	}
	return out
}

// Keywords maps each enabled module id to its keyword list.
func (r *ModuleRegistry) Keywords() map[string][]string {
	out := make(map[string][]string, len(r.Modules))
	for _, m := range r.Modules {
		if m.Status == StatusDisabled {
			continue
		}
		out[m.ID] = append([]string(nil), m.Keywords...)
	}
	return out
}

// Specificity returns the rank of id, with unknown modules ranked last.
func (r *ModuleRegistry) Specificity(id string) int {
	if m, ok := r.Get(id); ok {
		return m.Specificity
	}
	return 1 << 30
}
