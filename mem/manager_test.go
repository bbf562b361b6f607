package mem

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joshuapare/allockit/alloc"
)

func TestManager_RegisterAssignsLowestFreeID(t *testing.T) {
	m := New()

	ids := make([]alloc.AllocID, 3)
	for i := range ids {
		ids[i] = register(t, m, alloc.LinearConstructor(64))
		assert.Equal(t, alloc.ID(uint16(i)), ids[i])
	}

	a, ok := m.Lookup(ids[1])
	require.True(t, ok)
	assert.Equal(t, ids[1], a.ID(), "Register stamps the allocator")

	_, err := m.Unregister(ids[1])
	require.NoError(t, err)
	_, ok = m.Lookup(ids[1])
	assert.False(t, ok)

	again := register(t, m, alloc.LinearConstructor(64))
	assert.Equal(t, ids[1], again, "freed slot is reused")
}

func TestManager_RegistryFull(t *testing.T) {
	m := New()
	for i := 0; i <= alloc.MaxRegistryID; i++ {
		_, err := m.Register(alloc.NewLinear(nil))
		require.NoError(t, err)
	}
	_, err := m.Register(alloc.NewLinear(nil))
	require.ErrorIs(t, err, ErrRegistryFull)
}

// TestManager_LinearScenario registers a linear allocator over 8 bytes: two 4-byte
// requests fit, the third does not, and a reset makes room again.
func TestManager_LinearScenario(t *testing.T) {
	m := New()
	id := register(t, m, alloc.LinearConstructor(8))
	l := alloc.MustLayout(4, 4)

	p1, err := m.Alloc(id, l, alloc.Uninitialized)
	require.NoError(t, err)
	_, err = m.Alloc(id, l, alloc.Uninitialized)
	require.NoError(t, err)

	_, err = m.Alloc(id, l, alloc.Uninitialized)
	require.ErrorIs(t, err, alloc.ErrOutOfMemory)

	require.NoError(t, m.Reset(id))
	p3, err := m.Alloc(id, l, alloc.Uninitialized)
	require.NoError(t, err)
	assert.Equal(t, alloc.Addr(p1), alloc.Addr(p3))

	s, _ := m.Stats(id)
	assert.Equal(t, uint64(3), s.Allocs)
	assert.Equal(t, uint64(1), s.Failures)
	assert.Equal(t, int64(1), s.Live)
}

func TestManager_ResetUnsupported(t *testing.T) {
	m := New()
	id, err := m.Register(alloc.NewFallback(alloc.NewLinear(nil), alloc.NewMallocator()))
	require.NoError(t, err)
	require.ErrorIs(t, m.Reset(id), ErrNotResettable)
}

// TestManager_HeaderRoundTrip frees random blocks and checks that every other live
// block keeps its header and contents.
func TestManager_HeaderRoundTrip(t *testing.T) {
	m := New()
	id := register(t, m, alloc.FreelistConstructor(1<<16, alloc.FirstFit))
	rng := rand.New(rand.NewSource(7))

	type live struct {
		p    []byte
		l    alloc.Layout
		fill byte
	}
	var blocks []live

	for i := range 500 {
		if len(blocks) > 0 && rng.Intn(2) == 0 {
			j := rng.Intn(len(blocks))
			m.Dealloc(blocks[j].p, blocks[j].l)
			blocks = append(blocks[:j], blocks[j+1:]...)
		} else {
			l := alloc.MustLayout(1+rng.Intn(256), 1<<rng.Intn(5))
			p, err := m.Alloc(id, l, alloc.Uninitialized)
			require.NoError(t, err)
			for k := range p {
				p[k] = byte(i)
			}
			blocks = append(blocks, live{p, l, byte(i)})
		}

		for _, b := range blocks {
			h, ok := m.Header(b.p)
			require.True(t, ok)
			require.Equal(t, Header{ID: id, Layout: b.l}, h)
			require.Equal(t, b.fill, b.p[len(b.p)-1])
		}
	}
	assert.Equal(t, len(blocks), m.Live())
}

func TestManager_DoubleFree(t *testing.T) {
	m := New()
	id := register(t, m, alloc.PoolConstructor(256, 32))
	l := alloc.MustLayout(32, 8)

	p, err := m.Alloc(id, l, alloc.Uninitialized)
	require.NoError(t, err)
	m.Dealloc(p, l)

	requireViolation(t, alloc.ErrDoubleFree, func() { m.Dealloc(p, l) })
	requireViolation(t, alloc.ErrDoubleFree, func() { m.Free(p) })
	requireViolation(t, alloc.ErrDoubleFree, func() { _, _ = m.Realloc(p, 64) })
}

func TestManager_TombstonesDisabled(t *testing.T) {
	m := New(WithTombstones(0))
	p, err := m.Alloc(alloc.Malloc, alloc.MustLayout(8, 8), alloc.Uninitialized)
	require.NoError(t, err)
	m.Free(p)
	requireViolation(t, alloc.ErrUnknownPointer, func() { m.Free(p) })
}

func TestManager_Violations(t *testing.T) {
	m := New()
	l := alloc.MustLayout(16, 8)
	p, err := m.Alloc(alloc.Malloc, l, alloc.Uninitialized)
	require.NoError(t, err)

	requireViolation(t, alloc.ErrLayoutMismatch, func() { m.Dealloc(p, alloc.MustLayout(32, 8)) })
	_, ok := m.Header(p)
	assert.True(t, ok, "a mismatched free leaves the header in place")

	requireViolation(t, alloc.ErrUnknownPointer, func() { m.Free(make([]byte, 8)) })
	requireViolation(t, ErrTrackedPointer, func() { m.DeallocUntracked(p) })

	m.Dealloc(p, l)
}

func TestManager_FreeTruncatedBlock(t *testing.T) {
	m := New()
	id := register(t, m, alloc.PoolConstructor(256, 64))
	l := alloc.MustLayout(48, 8)
	p, err := m.Alloc(id, l, alloc.Uninitialized)
	require.NoError(t, err)

	short := p[:4:4]
	requireViolation(t, alloc.ErrLayoutMismatch, func() { m.Free(short) })
	requireViolation(t, alloc.ErrLayoutMismatch, func() { m.Dealloc(short, l) })
	requireViolation(t, alloc.ErrLayoutMismatch, func() { _, _ = m.Realloc(short, 96) })

	hdr, ok := m.Header(p)
	require.True(t, ok, "a rejected free keeps the header")
	assert.Equal(t, l, hdr.Layout)

	m.Free(p)
	assert.Zero(t, m.Live())
	st, _ := m.Stats(id)
	assert.Zero(t, st.Live)
}

func TestManager_AllocErrors(t *testing.T) {
	m := New()

	_, err := m.Alloc(alloc.ID(40), alloc.MustLayout(8, 8), alloc.Uninitialized)
	require.ErrorIs(t, err, ErrUnregistered)

	_, err = m.Alloc(alloc.Malloc, alloc.Layout{Size: 0, Align: 8}, alloc.Uninitialized)
	require.ErrorIs(t, err, alloc.ErrInvalidLayout)

	require.NoError(t, m.Shutdown())
	_, err = m.Alloc(alloc.Malloc, alloc.MustLayout(8, 8), alloc.Uninitialized)
	require.ErrorIs(t, err, ErrShutdown)
	_, err = m.Register(alloc.NewLinear(nil))
	require.ErrorIs(t, err, ErrShutdown)
}

func TestManager_Zeroed(t *testing.T) {
	m := New()
	id := register(t, m, alloc.PoolConstructor(64, 64))
	l := alloc.MustLayout(64, 8)

	p, err := m.Alloc(id, l, alloc.Uninitialized)
	require.NoError(t, err)
	for i := range p {
		p[i] = 0xFF
	}
	m.Free(p)

	p, err = m.Alloc(id, l, alloc.Zeroed)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 64), p)
}

func TestManager_Realloc(t *testing.T) {
	m := New()
	id := register(t, m, alloc.FreelistConstructor(4096, alloc.FirstFit))

	p, err := m.Alloc(id, alloc.MustLayout(8, 8), alloc.Uninitialized)
	require.NoError(t, err)
	copy(p, "allocate")

	grown, err := m.Realloc(p, 64)
	require.NoError(t, err)
	assert.Equal(t, "allocate", string(grown[:8]))
	h, ok := m.Header(grown)
	require.True(t, ok)
	assert.Equal(t, id, h.ID)
	assert.Equal(t, alloc.MustLayout(64, 8), h.Layout)

	shrunk, err := m.Realloc(grown, 4)
	require.NoError(t, err)
	assert.Equal(t, "allo", string(shrunk))

	m.Free(shrunk)
	assert.Zero(t, m.Live())
	requireViolation(t, alloc.ErrUnknownPointer, func() { _, _ = m.Realloc(make([]byte, 4), 8) })
}

func TestManager_Untracked(t *testing.T) {
	m := New()
	p, err := m.Alloc(alloc.Untracked, alloc.MustLayout(24, 16), alloc.Uninitialized)
	require.NoError(t, err)
	assert.Len(t, p, 24)
	assert.Zero(t, alloc.Addr(p)%16)

	_, ok := m.Header(p)
	assert.False(t, ok, "untracked blocks carry no header")
	m.DeallocUntracked(p)
}

func TestManager_Unregister(t *testing.T) {
	m := New()
	id := register(t, m, alloc.LinearConstructor(64))
	require.NoError(t, m.SetDefault(id))

	p, err := m.Alloc(id, alloc.MustLayout(8, 8), alloc.Uninitialized)
	require.NoError(t, err)
	_, err = m.Unregister(id)
	require.ErrorIs(t, err, ErrLiveAllocations)

	m.Free(p)
	a, err := m.Unregister(id)
	require.NoError(t, err)
	require.NoError(t, alloc.Close(a))
	assert.Equal(t, alloc.Malloc, m.DefaultID(), "default falls back to malloc")

	_, err = m.Unregister(id)
	require.ErrorIs(t, err, ErrUnregistered)
}

func TestManager_UnregisterDuringArenaGrowth(t *testing.T) {
	m := New()
	src := register(t, m, alloc.LinearConstructor(4096))

	entered := make(chan struct{})
	release := make(chan struct{})
	ctor := func(bs alloc.BufferSource) (alloc.Allocator, error) {
		close(entered)
		<-release
		return alloc.LinearConstructor(256)(bs)
	}
	arena := alloc.NewExpandableArena(ctor, func() (alloc.BufferSource, error) {
		return m.Buffers(src), nil
	})
	id, err := m.Register(arena)
	require.NoError(t, err)

	allocated := make(chan error, 1)
	go func() {
		_, err := m.Alloc(id, alloc.MustLayout(16, 8), alloc.Uninitialized)
		allocated <- err
	}()
	<-entered

	// Growth holds the arena's entry lock and still needs the registry to reach src.
	unregistered := make(chan error, 1)
	go func() {
		_, err := m.Unregister(id)
		unregistered <- err
	}()
	select {
	case err := <-unregistered:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(release)
		t.Fatal("Unregister blocked behind arena growth")
	}

	close(release)
	select {
	case err := <-allocated:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("arena growth never finished")
	}
}

func TestManager_SetDefault(t *testing.T) {
	m := New()
	assert.Equal(t, alloc.Malloc, m.DefaultID())

	require.ErrorIs(t, m.SetDefault(alloc.Default), ErrInvalidDefault)
	require.ErrorIs(t, m.SetDefault(alloc.Untracked), ErrInvalidDefault)
	require.ErrorIs(t, m.SetDefault(alloc.ID(3)), ErrUnregistered)

	id := register(t, m, alloc.LinearConstructor(64))
	require.NoError(t, m.SetDefault(id))
	assert.Equal(t, id, m.Resolve(alloc.Default))
	assert.Equal(t, alloc.Malloc, m.Resolve(alloc.Malloc))

	p, err := m.Alloc(alloc.Default, alloc.MustLayout(8, 8), alloc.Uninitialized)
	require.NoError(t, err)
	h, _ := m.Header(p)
	assert.Equal(t, id, h.ID)
}

func TestManager_WithDefaultOption(t *testing.T) {
	m := New(WithDefault(alloc.Untracked))
	assert.Equal(t, alloc.Malloc, m.DefaultID(), "invalid default is ignored")

	m = New(WithDefault(alloc.ID(0)))
	assert.Equal(t, alloc.ID(0), m.DefaultID())
}

func TestManager_Stats(t *testing.T) {
	m := New()
	id, err := m.RegisterNamed("frame", alloc.NewLinear(make([]byte, 64)))
	require.NoError(t, err)

	p, _ := m.Alloc(id, alloc.MustLayout(16, 1), alloc.Uninitialized)
	q, _ := m.Alloc(id, alloc.MustLayout(32, 1), alloc.Uninitialized)
	m.Free(q)

	s, ok := m.Stats(id)
	require.True(t, ok)
	assert.Equal(t, "frame", s.Name)
	assert.Equal(t, uint64(2), s.Allocs)
	assert.Equal(t, uint64(1), s.Frees)
	assert.Equal(t, int64(1), s.Live)
	assert.Equal(t, int64(16), s.LiveBytes)
	assert.Equal(t, int64(48), s.PeakBytes)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, id, snap[0].ID)
	assert.Equal(t, alloc.Malloc, snap[1].ID)
	m.Free(p)
}

// TestManager_ArenaThroughBuffers grows an expandable arena whose instances are
// carved out of another registered allocator.
func TestManager_ArenaThroughBuffers(t *testing.T) {
	m := New()
	general := register(t, m, alloc.FreelistConstructor(1<<14, alloc.FirstFit))

	arena := alloc.NewExpandableArena(alloc.LinearConstructor(1024), func() (alloc.BufferSource, error) {
		return m.Buffers(general), nil
	})
	scratch, err := m.Register(arena)
	require.NoError(t, err)

	l := alloc.MustLayout(512, 8)
	var blocks [][]byte
	for range 6 {
		p, err := m.Alloc(scratch, l, alloc.Uninitialized)
		require.NoError(t, err)
		blocks = append(blocks, p)
	}
	assert.Equal(t, 3, arena.Instances())

	gs, _ := m.Stats(general)
	assert.Equal(t, int64(3), gs.Live, "one region per instance")

	for _, p := range blocks {
		h, ok := m.Header(p)
		require.True(t, ok)
		assert.Equal(t, scratch, h.ID)
		m.Free(p)
	}

	require.NoError(t, arena.Close())
	gs, _ = m.Stats(general)
	assert.Zero(t, gs.Live, "closing the arena returns its regions")
	assert.Zero(t, m.Live())
	require.NoError(t, m.Shutdown())
}

func TestManager_ShutdownLogsLeaks(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := New(WithLogger(zap.New(core)))
	id := register(t, m, alloc.LinearConstructor(64))

	_, err := m.Alloc(id, alloc.MustLayout(8, 8), alloc.Uninitialized)
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown(), "second shutdown is a no-op")
	assert.True(t, m.Closed())

	entries := logs.FilterMessage("allocator leaked blocks at shutdown").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["blocks"])
}

func TestManager_ViolationIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := New(WithLogger(zap.New(core)))

	requireViolation(t, alloc.ErrUnknownPointer, func() { m.Free(make([]byte, 8)) })
	assert.Equal(t, 1, logs.FilterMessage("allocation contract violated").Len())
}

func TestManager_Concurrent(t *testing.T) {
	m := New()
	id := register(t, m, alloc.FreelistConstructor(1<<20, alloc.BestFit))

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(g)))
			var mine [][]byte
			for range 200 {
				p, err := m.Alloc(id, alloc.MustLayout(1+rng.Intn(128), 8), alloc.Uninitialized)
				if err != nil {
					t.Error(err)
					return
				}
				mine = append(mine, p)
				if rng.Intn(2) == 0 {
					m.Free(mine[0])
					mine = mine[1:]
				}
			}
			for _, p := range mine {
				m.Free(p)
			}
		}()
	}
	wg.Wait()

	s, _ := m.Stats(id)
	assert.Zero(t, s.Live)
	assert.Equal(t, s.Allocs, s.Frees)
	assert.Zero(t, m.Live())
}
