package batdev

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// InventoryEntry describes one battery on the bench.
type InventoryEntry struct {
	ID        string `yaml:"-"`
	Capacity  int    `yaml:"mAh" validate:"gt=0"`
	Chemistry string `yaml:"chemistry"`
	Notes     string `yaml:"notes"`
}

// Inventory maps a battery identifier to its entry. It is read-only once loaded.
type Inventory map[string]InventoryEntry

type inventoryFile struct {
	Batteries map[string]InventoryEntry `yaml:"batteries"`
}

// LoadInventory reads and validates the inventory file. Any problem is an
// error: the monitor must not start with a broken inventory.
func LoadInventory(path string) (Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory decodes inventory YAML of the form
//
//	batteries:
//	  A1: {mAh: 2000, chemistry: NiMH}
func ParseInventory(data []byte) (Inventory, error) {
	var f inventoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing inventory: %w", err)
	}

	inv := make(Inventory, len(f.Batteries))
	for id, e := range f.Batteries {
		if id == "" {
			return nil, fmt.Errorf("inventory: empty battery identifier")
		}
		if err := validate.Struct(e); err != nil {
			return nil, fmt.Errorf("inventory entry %q: %w", id, validationError(err))
		}
		e.ID = id
		inv[id] = e
	}
	return inv, nil
}

// Capacity returns the capacity in mAh for id.
func (inv Inventory) Capacity(id string) (int, bool) {
	e, ok := inv[id]
	if !ok {
		return 0, false
	}
	return e.Capacity, true
}

// IDs returns the known identifiers, sorted.
func (inv Inventory) IDs() []string {
	ids := make([]string, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
