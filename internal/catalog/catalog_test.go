package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const sampleYAML = `
entries:
  - id: 6983839
    name: Tornado Dragon
    kind: XYZ Monster
    description: 2 Level 4 monsters
  - id: 34541863
    name: '"A" Cell Breeding Device'
    kind: Spell Card
    description: Put 1 A-Counter on 1 face-up monster.
`

func TestLoadFromBytes(t *testing.T) {
	entries, err := LoadFromBytes([]byte(sampleYAML))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(6983839), entries[0].ID)
	assert.Equal(t, "XYZ Monster", entries[0].Kind)
	assert.Equal(t, `"A" Cell Breeding Device`, entries[1].Name)
}

func TestLoadFromBytesRejectsDuplicates(t *testing.T) {
	_, err := LoadFromBytes([]byte(`
entries:
  - {id: 1, name: a}
  - {id: 1, name: b}
`))
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestLoadFromBytesRejectsInvalid(t *testing.T) {
	_, err := LoadFromBytes([]byte("entries:\n  - {id: 0, name: a}\n"))
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = LoadFromBytes([]byte("entries:\n  - {id: 3}\n"))
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = LoadFromBytes([]byte("entries: [unterminated"))
	assert.Error(t, err)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	entries, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMemoryGet(t *testing.T) {
	m := NewMemory(Entry{ID: 2, Name: "b"}, Entry{ID: 1, Name: "a"})
	got, err := m.Get(context.Background(), []int64{2, 99, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, []Entry{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, got)

	m.Put(Entry{ID: 99, Name: "z"})
	assert.Equal(t, 3, m.Len())
}

func TestMemoryGetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemory().Get(ctx, []int64{1})
	assert.ErrorIs(t, err, context.Canceled)
}

// Property: Get never returns ids that were not requested and never duplicates.
func TestPropertyMemoryGetSubset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewMemory()
		stored := rapid.SliceOfDistinct(rapid.Int64Range(1, 50), func(v int64) int64 { return v }).Draw(t, "stored")
		for _, id := range stored {
			m.Put(Entry{ID: id, Name: "x"})
		}
		ids := rapid.SliceOf(rapid.Int64Range(1, 60)).Draw(t, "ids")

		got, err := m.Get(context.Background(), ids)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		requested := map[int64]bool{}
		for _, id := range ids {
			requested[id] = true
		}
		seen := map[int64]bool{}
		for _, e := range got {
			if !requested[e.ID] || seen[e.ID] {
				t.Fatalf("unexpected entry %d", e.ID)
			}
			seen[e.ID] = true
		}
	})
}
