package batdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInventory = `
batteries:
  A1:
    mAh: 2000
    chemistry: NiMH
  B7: {mAh: 850, chemistry: LiPo, notes: "swollen, retest"}
`

func TestParseInventory(t *testing.T) {
	inv, err := ParseInventory([]byte(sampleInventory))
	require.NoError(t, err)

	assert.Equal(t, []string{"A1", "B7"}, inv.IDs())
	assert.Equal(t, InventoryEntry{ID: "B7", Capacity: 850, Chemistry: "LiPo", Notes: "swollen, retest"}, inv["B7"])

	capacity, ok := inv.Capacity("A1")
	assert.True(t, ok)
	assert.Equal(t, 2000, capacity)

	_, ok = inv.Capacity("A2")
	assert.False(t, ok)
}

func TestParseInventoryRejectsBadEntries(t *testing.T) {
	tests := map[string]string{
		"zero capacity":    "batteries:\n  A1: {mAh: 0}\n",
		"missing capacity": "batteries:\n  A1: {chemistry: NiMH}\n",
		"not a number":     "batteries:\n  A1: {mAh: lots}\n",
		"not yaml":         "batteries: [\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseInventory([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadInventory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleInventory), 0o644))

	inv, err := LoadInventory(path)
	require.NoError(t, err)
	assert.Len(t, inv, 2)

	_, err = LoadInventory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNilInventoryLookup(t *testing.T) {
	var inv Inventory
	_, ok := inv.Capacity("A1")
	assert.False(t, ok)
}
