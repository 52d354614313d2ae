package engine

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is a serializable view of a registry: every definition minus its
// executor capability, which cannot cross a process boundary. Importing a
// snapshot therefore requires an executor binding per unit id.
type Snapshot struct {
	// Units lists the snapshotted definitions sorted by id.
	Units []SnapshotUnit `yaml:"units" json:"units"`
}

// SnapshotUnit mirrors UnitDefinition as a plain nested key-value structure.
type SnapshotUnit struct {
	ID           string                 `yaml:"id" json:"id"`
	Name         string                 `yaml:"name" json:"name"`
	Description  string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Category     string                 `yaml:"category,omitempty" json:"category,omitempty"`
	Tags         []string               `yaml:"tags,omitempty" json:"tags,omitempty"`
	Priority     int                    `yaml:"priority,omitempty" json:"priority,omitempty"`
	Timeout      time.Duration          `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries   int                    `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	Dependencies []string               `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Inputs       map[string]InputField  `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs      map[string]OutputField `yaml:"outputs,omitempty" json:"outputs,omitempty"`
}

// ExportSnapshot captures the current registry contents.
func (r *Registry) ExportSnapshot() *Snapshot {
	defs := r.List()
	snap := &Snapshot{Units: make([]SnapshotUnit, 0, len(defs))}
	for _, def := range defs {
		snap.Units = append(snap.Units, SnapshotUnit{
			ID:           def.ID,
			Name:         def.Name,
			Description:  def.Description,
			Category:     def.Category,
			Tags:         def.Tags,
			Priority:     def.Priority,
			Timeout:      def.Timeout,
			MaxRetries:   def.MaxRetries,
			Dependencies: def.Dependencies,
			Inputs:       def.Inputs,
			Outputs:      def.Outputs,
		})
	}
	return snap
}

// ImportSnapshot registers every snapshotted unit, resolving executors from
// the supplied bindings by unit id. The whole graph is validated afterwards.
func (r *Registry) ImportSnapshot(snap *Snapshot, executors map[string]Executor) error {
	if snap == nil {
		return NewPermanentError("snapshot is nil", nil).WithCode(ErrCodeValidation)
	}

	defs := make([]*UnitDefinition, 0, len(snap.Units))
	for _, u := range snap.Units {
		exec, ok := executors[u.ID]
		if !ok {
			return NewPermanentError(
				fmt.Sprintf("no executor bound for snapshotted unit %q", u.ID), nil).
				WithCode(ErrCodeValidation).
				WithUnit(u.ID)
		}
		defs = append(defs, &UnitDefinition{
			ID:           u.ID,
			Name:         u.Name,
			Description:  u.Description,
			Category:     u.Category,
			Tags:         u.Tags,
			Priority:     u.Priority,
			Timeout:      u.Timeout,
			MaxRetries:   u.MaxRetries,
			Dependencies: u.Dependencies,
			Inputs:       u.Inputs,
			Outputs:      u.Outputs,
			Executor:     exec,
		})
	}
	return r.RegisterAll(defs)
}

// MarshalYAML encodes the snapshot as YAML.
func (s *Snapshot) MarshalYAML() ([]byte, error) {
	type plain Snapshot
	return yaml.Marshal((*plain)(s))
}

// UnmarshalSnapshotYAML decodes a snapshot from YAML.
func UnmarshalSnapshotYAML(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, NewPermanentError("failed to decode snapshot", err).
			WithCode(ErrCodeValidation)
	}
	return &snap, nil
}
