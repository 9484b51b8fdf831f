// Package roster supplies the seed set of people and equipment. All
// Persons in the system come from here; wire data never fabricates one.
package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crewmesh/crewmesh/model"
	"github.com/crewmesh/crewmesh/wire"
)

// Seed is one loaded roster.
type Seed struct {
	People    []model.Person
	Equipment []model.EquipmentRecord
}

type rosterFile struct {
	People    []personEntry    `yaml:"people"`
	Equipment []equipmentEntry `yaml:"equipment"`
}

type personEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Role       string `yaml:"role"`
	Department string `yaml:"department"`
}

type equipmentEntry struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	SerialNumber string `yaml:"serial_number"`
	AssignedTo   string `yaml:"assigned_to"`
	Condition    string `yaml:"condition"`
}

// Load reads a roster YAML file. Identifiers must be delimiter-safe; the
// flat-key codec depends on that precondition, so it is enforced at the
// point of creation rather than discovered on the wire.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}

	seed := &Seed{}
	for _, p := range f.People {
		if !wire.ValidIdentifier(p.ID) {
			return nil, fmt.Errorf("roster person id %q is not delimiter-safe", p.ID)
		}
		role := model.RoleMember
		if p.Role == string(model.RoleAdmin) {
			role = model.RoleAdmin
		}
		seed.People = append(seed.People, model.Person{
			ID:          p.ID,
			DisplayName: p.Name,
			Role:        role,
			Department:  p.Department,
			Status:      model.StatusUnknown,
		})
	}

	for _, e := range f.Equipment {
		if !wire.ValidIdentifier(e.ID) {
			return nil, fmt.Errorf("roster equipment id %q is not delimiter-safe", e.ID)
		}
		condition := e.Condition
		if condition == "" {
			condition = "Good"
		}
		seed.Equipment = append(seed.Equipment, model.EquipmentRecord{
			ID:           e.ID,
			Name:         e.Name,
			SerialNumber: e.SerialNumber,
			AssignedToID: e.AssignedTo,
			Condition:    condition,
		})
	}

	return seed, nil
}
