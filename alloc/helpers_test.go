package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testBuffer returns a heap region of size bytes aligned to a.
func testBuffer(t testing.TB, size, a int) []byte {
	t.Helper()
	buf, err := NewMallocator().AllocBuffer(MustLayout(size, a))
	require.NoError(t, err)
	return buf
}

// requireViolation runs fn and requires it to panic with a *Violation wrapping want.
func requireViolation(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic wrapping %v", want)
		v, ok := r.(*Violation)
		require.True(t, ok, "panic value %T is not a *Violation: %v", r, r)
		require.ErrorIs(t, v, want)
	}()
	fn()
}
