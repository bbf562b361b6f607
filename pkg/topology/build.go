package topology

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joshuapare/allockit/alloc"
	"github.com/joshuapare/allockit/mem"
)

const (
	defaultStackAlign     = 16
	defaultBlocksPerClass = 64
)

// Build constructs every top-level allocator with regions from src, registers them
// with m in document order and sets m's default. It returns the id of each name.
// On error, allocators registered so far stay registered.
func (t *Topology) Build(m *mem.Manager, src alloc.BufferSource) (map[string]alloc.AllocID, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	b := &builder{m: m, ids: map[string]alloc.AllocID{MallocName: alloc.Malloc}}
	for _, s := range t.Allocators {
		a, err := b.build(&s, src)
		if err != nil {
			return b.ids, fmt.Errorf("topology: build %s: %w", s.Name, err)
		}
		id, err := m.RegisterNamed(s.Name, a)
		if err != nil {
			return b.ids, errors.Join(fmt.Errorf("topology: register %s: %w", s.Name, err), alloc.Close(a))
		}
		b.ids[s.Name] = id
		mem.Logger().Debug("topology allocator registered",
			zap.String("name", s.Name),
			zap.String("kind", s.Kind),
			zap.Stringer("id", id))
	}

	if t.Default != "" {
		if err := m.SetDefault(b.ids[t.Default]); err != nil {
			return b.ids, fmt.Errorf("topology: default %s: %w", t.Default, err)
		}
	}
	return b.ids, nil
}

type builder struct {
	m   *mem.Manager
	ids map[string]alloc.AllocID
}

func (b *builder) build(s *Spec, src alloc.BufferSource) (alloc.Allocator, error) {
	switch strings.ToLower(s.Kind) {
	case KindLinear:
		return alloc.LinearConstructor(int(s.Size))(src)
	case KindStack:
		a := s.Align
		if a == 0 {
			a = defaultStackAlign
		}
		return alloc.StackConstructor(int(s.Size), a)(src)
	case KindPool:
		return alloc.PoolConstructor(int(s.Size), int(s.Block))(src)
	case KindBitmap:
		count := s.Count
		if count == 0 {
			count = int(s.Size / s.Block)
		}
		return alloc.BitmapConstructor(int(s.Block), count)(src)
	case KindFreelist:
		policy, err := alloc.ParseFitPolicy(s.Policy)
		if err != nil {
			return nil, err
		}
		return alloc.FreelistConstructor(int(s.Size), policy)(src)
	case KindMalloc:
		return alloc.NewMallocator(), nil
	case KindFallback:
		main, fb, err := b.pair(s.Main, s.Fallback, src)
		if err != nil {
			return nil, err
		}
		return alloc.NewFallback(main, fb), nil
	case KindSegregator:
		small, large, err := b.pair(s.Small, s.Large, src)
		if err != nil {
			return nil, err
		}
		return alloc.NewSegregator(int(s.Boundary), small, large), nil
	case KindExpandable:
		return b.expandable(s, src), nil
	case KindSizeClassed:
		return b.sizeClassed(s, src)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTopology, s.Kind)
}

// pair builds two children, closing the first if the second fails.
func (b *builder) pair(first, second *Spec, src alloc.BufferSource) (alloc.Allocator, alloc.Allocator, error) {
	x, err := b.build(first, src)
	if err != nil {
		return nil, nil, err
	}
	y, err := b.build(second, src)
	if err != nil {
		return nil, nil, errors.Join(err, alloc.Close(x))
	}
	return x, y, nil
}

// expandable builds an arena whose instances are carved from the named arena
// allocator through the manager, or from src when no arena is named.
func (b *builder) expandable(s *Spec, src alloc.BufferSource) alloc.Allocator {
	inst := *s.Instance
	ctor := func(from alloc.BufferSource) (alloc.Allocator, error) {
		return b.build(&inst, from)
	}
	if s.Arena == "" {
		return alloc.NewExpandableArena(ctor, alloc.StaticBuffers(src))
	}
	arena := s.Arena
	return alloc.NewExpandableArena(ctor, func() (alloc.BufferSource, error) {
		id, ok := b.ids[arena]
		if !ok {
			return nil, fmt.Errorf("%w: arena %q is not registered", ErrInvalidTopology, arena)
		}
		return b.m.Buffers(id), nil
	})
}

func (b *builder) sizeClassed(s *Spec, src alloc.BufferSource) (alloc.Allocator, error) {
	cfg, err := sizeClassConfig(s.Classes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}
	perClass := s.BlocksPerClass
	if perClass == 0 {
		perClass = defaultBlocksPerClass
	}

	var large alloc.Allocator = alloc.NewMallocator()
	if s.Large != nil {
		if large, err = b.build(s.Large, src); err != nil {
			return nil, err
		}
	}
	sc, err := alloc.NewSizeClassed(cfg, src, perClass, large)
	if err != nil {
		return nil, errors.Join(err, alloc.Close(large))
	}
	return sc, nil
}
