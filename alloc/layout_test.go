package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLayout(t *testing.T) {
	tests := []struct {
		name  string
		size  int
		align int
		ok    bool
	}{
		{"byte", 1, 1, true},
		{"word", 8, 8, true},
		{"max align", 64, MaxAlign, true},
		{"max size", MaxSize, 8, true},
		{"zero size", 0, 8, false},
		{"negative size", -1, 8, false},
		{"oversized", MaxSize + 1, 8, false},
		{"align not pow2", 16, 12, false},
		{"align zero", 16, 0, false},
		{"align too large", 16, MaxAlign * 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLayout(tt.size, tt.align)
			if !tt.ok {
				require.ErrorIs(t, err, ErrInvalidLayout)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, l.Size)
			assert.Equal(t, tt.align, l.Align)
		})
	}
}

func TestLayoutOf(t *testing.T) {
	assert.Equal(t, Layout{Size: 8, Align: 8}, LayoutOf[uint64]())
	assert.Equal(t, Layout{Size: 1, Align: 1}, LayoutOf[struct{}]())

	type pair struct {
		a uint32
		b uint16
	}
	assert.Equal(t, Layout{Size: 8, Align: 4}, LayoutOf[pair]())
}

func TestArrayLayout(t *testing.T) {
	l, err := ArrayLayout[uint32](10)
	require.NoError(t, err)
	assert.Equal(t, Layout{Size: 40, Align: 4}, l)

	_, err = ArrayLayout[uint64](0)
	require.ErrorIs(t, err, ErrInvalidLayout)

	_, err = ArrayLayout[uint64](1 << 62)
	require.ErrorIs(t, err, ErrInvalidLayout, "overflow must be rejected")
}

func TestLayoutAdjust(t *testing.T) {
	l := MustLayout(13, 4)
	assert.Equal(t, 16, l.WithMinAlign(16).Align)
	assert.Equal(t, 4, l.WithMinAlign(2).Align)
	assert.Equal(t, 16, l.RoundedTo(8).Size)
	assert.Equal(t, "Layout{size=13 align=4}", l.String())

	assert.Panics(t, func() { MustLayout(0, 8) })
}

func TestAllocID(t *testing.T) {
	var zero AllocID
	assert.Equal(t, Default, zero, "zero value must be Default")
	assert.Equal(t, KindDefault, zero.Kind())

	id := ID(42)
	n, ok := id.Index()
	assert.True(t, ok)
	assert.Equal(t, uint16(42), n)
	assert.True(t, id.IsRegistered())
	assert.False(t, id.IsSentinel())
	assert.Equal(t, "#42", id.String())

	for _, s := range []AllocID{Malloc, Untracked} {
		assert.True(t, s.IsSentinel(), s.String())
		_, ok := s.Index()
		assert.False(t, ok)
	}

	// Sentinels never collide with registry ids, not even the last one.
	assert.NotEqual(t, ID(MaxRegistryID), Malloc)
	assert.NotEqual(t, ID(MaxRegistryID), Untracked)
	assert.NotEqual(t, ID(0), Default)

	assert.Panics(t, func() { ID(0xFFFF) })
	assert.Equal(t, "malloc", Malloc.String())
	assert.Equal(t, "untracked", Untracked.String())
	assert.Equal(t, "default", Default.String())
}

func TestViolation(t *testing.T) {
	v := NewViolation(ErrDoubleFree, 0x1000, ID(3), "pool block 2")
	require.ErrorIs(t, v, ErrDoubleFree)
	assert.Contains(t, v.Error(), "#3")
	assert.Contains(t, v.Error(), "0x1000")
	assert.Contains(t, v.Error(), "pool block 2")
}
