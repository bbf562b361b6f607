package align

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUp(t *testing.T) {
	tests := []struct {
		n, a, want int
	}{
		{1, 8, 8},
		{8, 8, 8},
		{9, 8, 16},
		{9, 16, 16},
		{17, 16, 32},
		{0, 4, 0},
		{4095, 4096, 4096},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Up(tt.n, tt.a), "Up(%d, %d)", tt.n, tt.a)
	}
}

func TestPadding(t *testing.T) {
	assert.Equal(t, 0, Padding(0x1000, 16))
	assert.Equal(t, 4, Padding(0x1004, 8))
	assert.Equal(t, 15, Padding(0x1001, 16))
}

func TestIsPow2(t *testing.T) {
	for _, n := range []int{1, 2, 4, 1024, 1 << 15} {
		assert.True(t, IsPow2(n), "%d", n)
	}
	for _, n := range []int{0, -2, 3, 6, 1000} {
		assert.False(t, IsPow2(n), "%d", n)
	}
}

func TestLog2AndLowBit(t *testing.T) {
	assert.Equal(t, 0, Log2(1))
	assert.Equal(t, 4, Log2(16))
	assert.Equal(t, 8, LowBit(0x1008))
	assert.Equal(t, 4096, LowBit(0x3000))
	assert.Equal(t, 1, LowBit(7))
}

func TestOverflowSafe(t *testing.T) {
	v, ok := AddOverflowSafe(1, 2)
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = AddOverflowSafe(math.MaxInt, 1)
	assert.False(t, ok)

	v, ok = MulOverflowSafe(8, 16)
	assert.True(t, ok)
	assert.Equal(t, 128, v)

	_, ok = MulOverflowSafe(math.MaxInt/2+1, 2)
	assert.False(t, ok)

	_, ok = MulOverflowSafe(-1, 2)
	assert.False(t, ok)
}
