package topology

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/allockit/alloc"
	"github.com/joshuapare/allockit/internal/region"
	"github.com/joshuapare/allockit/mem"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want Size
		ok   bool
	}{
		{"512", 512, true},
		{"64KiB", 64 << 10, true},
		{"1 MiB", 1 << 20, true},
		{"2GiB", 2 << 30, true},
		{"10B", 10, true},
		{"-1", 0, false},
		{"1.5MiB", 0, false},
		{"MiB", 0, false},
		{"12XB", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if !tt.ok {
				require.ErrorIs(t, err, ErrInvalidTopology)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "64KiB", Size(64<<10).String())
	assert.Equal(t, "1000", Size(1000).String())
}

func TestLoad(t *testing.T) {
	top, err := Load(filepath.Join("testdata", "game.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "general", top.Default)
	assert.Equal(t, []string{"frame", "general", "scratch", "commands", "handles", "objects"}, top.Names())

	general := top.Allocators[1]
	assert.Equal(t, Size(256), general.Boundary)
	require.NotNil(t, general.Large)
	assert.Equal(t, "best-fit", general.Large.Main.Policy)
	assert.Equal(t, Size(1<<20), general.Large.Main.Size)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":            `allocators: []`,
		"unknown kind":     "allocators:\n  - {name: a, kind: slab, size: 64}",
		"missing size":     "allocators:\n  - {name: a, kind: linear}",
		"duplicate name":   "allocators:\n  - {name: a, kind: malloc}\n  - {name: a, kind: malloc}",
		"reserved name":    "allocators:\n  - {name: malloc, kind: malloc}",
		"unknown default":  "default: b\nallocators:\n  - {name: a, kind: malloc}",
		"forward arena":    "allocators:\n  - {name: s, kind: expandable, arena: g, instance: {kind: linear, size: 64}}\n  - {name: g, kind: malloc}",
		"missing child":    "allocators:\n  - {name: f, kind: fallback, main: {kind: malloc}}",
		"bad pool block":   "allocators:\n  - {name: p, kind: pool, size: 64, block: 12}",
		"bad policy":       "allocators:\n  - {name: f, kind: freelist, size: 64, policy: worst}",
		"bad classes":      "allocators:\n  - {name: c, kind: sizeclassed, classes: tiny}",
		"unknown field":    "allocators:\n  - {name: a, kind: linear, size: 64, colour: red}",
		"bad size":         "allocators:\n  - {name: a, kind: linear, size: lots}",
		"bad stack align":  "allocators:\n  - {name: a, kind: stack, size: 64, align: 24}",
		"nested bad child": "allocators:\n  - {name: s, kind: segregator, boundary: 8, small: {kind: pool}, large: {kind: malloc}}",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalidTopology)
		})
	}
}

func TestBuild(t *testing.T) {
	top, err := Load(filepath.Join("testdata", "game.yaml"))
	require.NoError(t, err)

	m := mem.New()
	ids, err := top.Build(m, region.NewSource())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Shutdown()) })

	for _, name := range top.Names() {
		id, ok := ids[name]
		require.True(t, ok, name)
		assert.True(t, id.IsRegistered(), name)
		s, ok := m.Stats(id)
		require.True(t, ok)
		assert.Equal(t, name, s.Name)
	}
	assert.Equal(t, ids["general"], m.DefaultID())

	// Small requests land in the pool, large ones in the freelist, huge ones on the heap.
	general, _ := m.Lookup(ids["general"])
	seg := general.(*alloc.Segregator)
	for _, size := range []int{16, 4096, 4 << 20} {
		l := alloc.MustLayout(size, 8)
		p, err := m.Alloc(alloc.Default, l, alloc.Uninitialized)
		require.NoError(t, err, "size %d", size)
		assert.True(t, seg.Owns(p, l))
		m.Dealloc(p, l)
	}

	// The scratch arena grows out of general.
	before, _ := m.Stats(ids["general"])
	var blocks [][]byte
	for range 3 {
		p, err := m.Alloc(ids["scratch"], alloc.MustLayout(12<<10, 8), alloc.Uninitialized)
		require.NoError(t, err)
		blocks = append(blocks, p)
	}
	after, _ := m.Stats(ids["general"])
	assert.Equal(t, before.Live+3, after.Live, "one 16KiB region per scratch instance")
	for _, p := range blocks {
		m.Free(p)
	}

	p, err := m.Alloc(ids["objects"], alloc.MustLayout(100, 8), alloc.Zeroed)
	require.NoError(t, err)
	m.Free(p)
}

func TestBuild_DefaultMalloc(t *testing.T) {
	top, err := Parse([]byte("allocators:\n  - {name: frame, kind: linear, size: 1KiB}\n"))
	require.NoError(t, err)

	m := mem.New()
	ids, err := top.Build(m, alloc.NewMallocator())
	require.NoError(t, err)
	assert.Equal(t, alloc.Malloc, m.DefaultID())
	assert.Equal(t, alloc.Malloc, ids[MallocName])
	require.NoError(t, m.Shutdown())
}

func TestMarshalRoundTrip(t *testing.T) {
	top, err := Load(filepath.Join("testdata", "game.yaml"))
	require.NoError(t, err)

	data, err := top.Marshal()
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, top, again)
}
