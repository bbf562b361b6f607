package topology

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joshuapare/allockit/alloc"
)

// Validate checks names, kinds, required fields and arena references.
// All problems are reported together.
func (t *Topology) Validate() error {
	var errs []error
	fail := func(path, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalidTopology, path, fmt.Sprintf(format, args...)))
	}

	if len(t.Allocators) == 0 {
		fail("allocators", "at least one allocator is required")
	}

	defined := map[string]bool{MallocName: true}
	for i := range t.Allocators {
		s := &t.Allocators[i]
		path := fmt.Sprintf("allocators[%d]", i)
		switch {
		case s.Name == "":
			fail(path, "name is required")
		case s.Name == MallocName:
			fail(path, "name %q is reserved", MallocName)
		case defined[s.Name]:
			fail(path, "duplicate name %q", s.Name)
		}
		validateSpec(s, path+"("+s.Name+")", defined, fail)
		if s.Name != "" {
			defined[s.Name] = true
		}
	}

	if t.Default != "" && !defined[t.Default] {
		fail("default", "unknown allocator %q", t.Default)
	}
	return errors.Join(errs...)
}

func validateSpec(s *Spec, path string, defined map[string]bool, fail func(path, format string, args ...any)) {
	need := func(ok bool, field string) {
		if !ok {
			fail(path, "%s allocator needs %s", s.Kind, field)
		}
	}
	child := func(c *Spec, field string) {
		if c == nil {
			fail(path, "%s allocator needs %s", s.Kind, field)
			return
		}
		validateSpec(c, path+"."+field, defined, fail)
	}

	switch strings.ToLower(s.Kind) {
	case KindLinear:
		need(s.Size > 0, "a size")
	case KindFreelist:
		need(s.Size > 0, "a size")
		if _, err := alloc.ParseFitPolicy(s.Policy); err != nil {
			fail(path, "%v", err)
		}
	case KindStack:
		need(s.Size > 0, "a size")
		if s.Align != 0 && (s.Align&(s.Align-1) != 0 || s.Align < 0 || s.Align > alloc.MaxAlign) {
			fail(path, "stack align %d must be a power of two up to %d", s.Align, alloc.MaxAlign)
		}
	case KindPool:
		need(s.Size > 0, "a size")
		need(s.Block >= alloc.Word && s.Block%alloc.Word == 0, "a block size that is a multiple of 8")
		if s.Block > 0 && s.Size > 0 && s.Size < s.Block {
			fail(path, "size %v holds no %v blocks", s.Size, s.Block)
		}
	case KindBitmap:
		need(s.Block >= alloc.Word && s.Block%alloc.Word == 0, "a block size that is a multiple of 8")
		need(s.Count > 0 || s.Size > 0, "a count or a size")
	case KindMalloc:
	case KindFallback:
		child(s.Main, "main")
		child(s.Fallback, "fallback")
	case KindSegregator:
		need(s.Boundary > 0, "a boundary")
		child(s.Small, "small")
		child(s.Large, "large")
	case KindExpandable:
		child(s.Instance, "instance")
		if s.Arena != "" && !defined[s.Arena] {
			fail(path, "arena %q must name an allocator defined earlier, or %q", s.Arena, MallocName)
		}
	case KindSizeClassed:
		if _, err := sizeClassConfig(s.Classes); err != nil {
			fail(path, "%v", err)
		}
		if s.Large != nil {
			validateSpec(s.Large, path+".large", defined, fail)
		}
	case "":
		fail(path, "kind is required")
	default:
		fail(path, "unknown kind %q", s.Kind)
	}
}

func sizeClassConfig(name string) (alloc.SizeClassConfig, error) {
	switch strings.ToLower(name) {
	case "", "balanced":
		return alloc.ConfigBalanced, nil
	case "fine", "finegrained", "fine-grained":
		return alloc.ConfigFineGrained, nil
	case "coarse":
		return alloc.ConfigCoarse, nil
	}
	return alloc.SizeClassConfig{}, fmt.Errorf("unknown size classes %q", name)
}
