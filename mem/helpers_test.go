package mem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/allockit/alloc"
)

// requireViolation runs fn and requires it to panic with an *alloc.Violation wrapping want.
func requireViolation(t *testing.T, want error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic wrapping %v", want)
		v, ok := r.(*alloc.Violation)
		require.True(t, ok, "panic value %T is not a *alloc.Violation: %v", r, r)
		require.ErrorIs(t, v, want)
	}()
	fn()
}

// register builds an allocator with ctor over the Go heap and registers it.
func register(t *testing.T, m *Manager, ctor alloc.Constructor) alloc.AllocID {
	t.Helper()
	a, err := ctor(alloc.NewMallocator())
	require.NoError(t, err)
	id, err := m.Register(a)
	require.NoError(t, err)
	return id
}

// withGlobal installs a fresh process-wide manager for the duration of the test.
func withGlobal(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := Init(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if Initialized() {
			_ = Teardown()
		}
	})
	return m
}
