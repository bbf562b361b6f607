package alloc

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/joshuapare/allockit/internal/align"
)

// SizeClassConfig describes how request sizes map to pooled block sizes.
// Every class becomes one Pool; requests past MediumMax never touch a pool and go
// straight to the spill allocator.
type SizeClassConfig struct {
	Name string

	// Up to SmallMax, classes are SmallIncrement apart starting at SmallMin.
	SmallMin       int32
	SmallMax       int32
	SmallIncrement int32

	// Between SmallMax and MediumMax each class is GrowthFactor times the previous.
	MediumMax    int32
	GrowthFactor float64
}

// Predefined configurations. Finer steps mean more pools and less slack per block.
var (
	// ConfigFineGrained: 31 pools stepping by 8 up to 256, then about 11 pools up to 16K.
	ConfigFineGrained = SizeClassConfig{
		Name:           "FineGrained",
		SmallMin:       8,
		SmallMax:       256,
		SmallIncrement: 8,
		MediumMax:      16384,
		GrowthFactor:   1.5,
	}

	// ConfigBalanced: 32 pools stepping by 16 up to 512, then about 9 up to 16K.
	ConfigBalanced = SizeClassConfig{
		Name:           "Balanced",
		SmallMin:       8,
		SmallMax:       512,
		SmallIncrement: 16,
		MediumMax:      16384,
		GrowthFactor:   1.5,
	}

	// ConfigCoarse: 16 pools stepping by 32 up to 512, then 5 doubling pools.
	ConfigCoarse = SizeClassConfig{
		Name:           "Coarse",
		SmallMin:       8,
		SmallMax:       512,
		SmallIncrement: 32,
		MediumMax:      16384,
		GrowthFactor:   2.0,
	}

	DefaultConfig = ConfigBalanced
)

// Validate reports configs whose classes would not strictly increase.
func (c SizeClassConfig) Validate() error {
	switch {
	case c.SmallMin <= 0 || c.SmallIncrement <= 0:
		return fmt.Errorf("%w: size classes %q: SmallMin and SmallIncrement must be positive", ErrInvalidConfig, c.Name)
	case c.SmallMax < c.SmallMin:
		return fmt.Errorf("%w: size classes %q: SmallMax below SmallMin", ErrInvalidConfig, c.Name)
	case c.MediumMax > c.SmallMax && c.GrowthFactor <= 1:
		return fmt.Errorf("%w: size classes %q: GrowthFactor must exceed 1", ErrInvalidConfig, c.Name)
	}
	return nil
}

// classTable lists the largest request each pool accepts, ascending.
type classTable struct {
	name   string
	limits []int
}

func buildClassTable(c SizeClassConfig) classTable {
	inc := int(c.SmallIncrement)
	t := classTable{name: c.Name}

	for n := int(c.SmallMin); n < int(c.SmallMax); n += inc {
		t.limits = append(t.limits, n+inc-1)
	}
	for n := int(c.SmallMax); n < int(c.MediumMax); {
		next := max(int(math.Ceil(float64(n)*c.GrowthFactor)), n+1)
		t.limits = append(t.limits, next-1)
		n = next
	}
	return t
}

// classOf returns the pool index for size, or len(limits) when size spills.
func (t classTable) classOf(size int) int {
	i, _ := slices.BinarySearch(t.limits, size)
	return i
}

func (t classTable) len() int { return len(t.limits) }

// SizeClassed serves each size class from its own Pool and everything larger from
// a separate allocator. A class whose pool is full or cannot meet the alignment
// spills to the large allocator; Dealloc asks the class pool for ownership first,
// so spilled blocks still free through the allocator that produced them.
type SizeClassed struct {
	table classTable
	pools []*Pool
	large Allocator
	id    AllocID
}

// NewSizeClassed builds one Pool of blocksPerClass blocks per size class, each backed
// by a region from src.
func NewSizeClassed(cfg SizeClassConfig, src BufferSource, blocksPerClass int, large Allocator) (*SizeClassed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if blocksPerClass <= 0 {
		return nil, fmt.Errorf("%w: blocksPerClass %d", ErrInvalidConfig, blocksPerClass)
	}

	s := &SizeClassed{table: buildClassTable(cfg), large: large}
	for _, limit := range s.table.limits {
		block := align.Up(limit, Word)
		size, ok := align.MulOverflowSafe(block, blocksPerClass)
		if !ok {
			return nil, errors.Join(fmt.Errorf("%w: class %d too large", ErrInvalidConfig, limit), s.closePools())
		}
		a, err := PoolConstructor(size, block)(src)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("size class %d: %w", limit, err), s.closePools())
		}
		s.pools = append(s.pools, a.(*Pool))
	}
	return s, nil
}

func (s *SizeClassed) class(l Layout) int {
	return s.table.classOf(l.Size)
}

// Alloc serves l from its class pool, spilling to the large allocator when the
// class is full or l is past the last class.
func (s *SizeClassed) Alloc(l Layout) []byte {
	if !l.Valid() {
		return nil
	}
	if c := s.class(l); c < len(s.pools) {
		if p := s.pools[c].Alloc(l); p != nil {
			return p
		}
	}
	return s.large.Alloc(l)
}

// Dealloc frees through the class pool when it owns p, otherwise through the
// large allocator.
func (s *SizeClassed) Dealloc(p []byte, l Layout) {
	if c := s.class(l); c < len(s.pools) && s.pools[c].Owns(p, l) {
		s.pools[c].Dealloc(p, l)
		return
	}
	if !s.large.Owns(p, l) {
		violate(ErrNotOwned, p, s.id, "size classes %q", s.table.name)
	}
	s.large.Dealloc(p, l)
}

// Owns reports whether the class pool or the large allocator owns p.
func (s *SizeClassed) Owns(p []byte, l Layout) bool {
	if c := s.class(l); c < len(s.pools) && s.pools[c].Owns(p, l) {
		return true
	}
	return s.large.Owns(p, l)
}

// SetID stamps every pool and the large allocator.
func (s *SizeClassed) SetID(id AllocID) {
	s.id = id
	for _, p := range s.pools {
		p.SetID(id)
	}
	s.large.SetID(id)
}

func (s *SizeClassed) ID() AllocID { return s.id }

// NumClasses returns the number of pooled size classes.
func (s *SizeClassed) NumClasses() int { return s.table.len() }

// ClassFor returns the block size serving size, or 0 when size goes to the large allocator.
func (s *SizeClassed) ClassFor(size int) int {
	c := s.class(Layout{Size: size})
	if c >= len(s.pools) {
		return 0
	}
	return s.pools[c].BlockSize()
}

// String returns the config name.
func (s *SizeClassed) String() string { return s.table.name }

// Close releases every pool and the large allocator.
func (s *SizeClassed) Close() error {
	return errors.Join(s.closePools(), Close(s.large))
}

func (s *SizeClassed) closePools() error {
	errs := make([]error, 0, len(s.pools))
	for _, p := range s.pools {
		errs = append(errs, p.Close())
	}
	s.pools = nil
	return errors.Join(errs...)
}

var _ Allocator = (*SizeClassed)(nil)
