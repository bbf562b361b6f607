package alloc

import (
	"fmt"
	"sort"

	"github.com/joshuapare/allockit/internal/align"
)

// minSplit is the smallest remainder kept as a separate free span. Smaller
// remainders are absorbed into the allocation.
const minSplit = 16

// FitPolicy selects which free span serves a request.
type FitPolicy uint8

const (
	// FirstFit takes the lowest-addressed span that fits.
	FirstFit FitPolicy = iota
	// BestFit takes the smallest span that fits, lowest address on ties.
	BestFit
)

func (p FitPolicy) String() string {
	if p == BestFit {
		return "best-fit"
	}
	return "first-fit"
}

// ParseFitPolicy accepts "first-fit"/"first" and "best-fit"/"best".
func ParseFitPolicy(s string) (FitPolicy, error) {
	switch s {
	case "", "first", "first-fit", "firstfit":
		return FirstFit, nil
	case "best", "best-fit", "bestfit":
		return BestFit, nil
	}
	return FirstFit, fmt.Errorf("%w: unknown fit policy %q", ErrInvalidConfig, s)
}

// span is a byte range [off, off+size) of the region.
type span struct {
	off  int
	size int
}

// Freelist allocates variable-size blocks from an address-ordered list of free spans.
// Bookkeeping is kept out of band, so the region holds user data only.
type Freelist struct {
	region
	policy FitPolicy
	free   []span       // sorted by off, never adjacent
	allocs map[int]span // user offset -> consumed span (alignment padding included)
	id     AllocID
	back   *backing
}

// NewFreelist returns a freelist allocator over buf.
func NewFreelist(buf []byte, policy FitPolicy) *Freelist {
	f := &Freelist{
		region: newRegion(buf),
		policy: policy,
		allocs: make(map[int]span),
	}
	f.Reset()
	return f
}

// find returns the index of the span that should serve l and the padding needed
// at its front, or -1.
func (f *Freelist) find(l Layout) (int, int) {
	best, bestPad := -1, 0
	for i, s := range f.free {
		pad := align.Padding(f.base+uintptr(s.off), l.Align)
		need, ok := align.AddOverflowSafe(pad, l.Size)
		if !ok || need > s.size {
			continue
		}
		if f.policy == FirstFit {
			return i, pad
		}
		if best < 0 || s.size < f.free[best].size {
			best, bestPad = i, pad
		}
	}
	return best, bestPad
}

// Alloc carves l out of the first (or best) free span that fits after alignment.
func (f *Freelist) Alloc(l Layout) []byte {
	if !l.Valid() {
		return nil
	}
	i, pad := f.find(l)
	if i < 0 {
		return nil
	}
	s := f.free[i]
	used := pad + l.Size
	if s.size-used < minSplit {
		used = s.size
		f.free = append(f.free[:i], f.free[i+1:]...)
	} else {
		f.free[i] = span{off: s.off + used, size: s.size - used}
	}
	user := s.off + pad
	f.allocs[user] = span{off: s.off, size: used}
	return f.slice(user, l.Size)
}

// Dealloc returns p's span to the free list, merging it with free neighbours.
func (f *Freelist) Dealloc(p []byte, _ Layout) {
	off, ok := f.offset(p)
	if !ok {
		violate(ErrNotOwned, p, f.id, "freelist allocator")
	}
	rec, ok := f.allocs[off]
	if !ok {
		if f.isFree(off) {
			violate(ErrDoubleFree, p, f.id, "offset %d is already free", off)
		}
		violate(ErrUnknownPointer, p, f.id, "offset %d is not the start of a live block", off)
	}
	delete(f.allocs, off)
	f.insert(rec)
}

// insert returns s to the free list, coalescing with both neighbours.
func (f *Freelist) insert(s span) {
	i := sort.Search(len(f.free), func(i int) bool { return f.free[i].off > s.off })

	if i > 0 && f.free[i-1].off+f.free[i-1].size == s.off {
		i--
		s = span{off: f.free[i].off, size: f.free[i].size + s.size}
		f.free = append(f.free[:i], f.free[i+1:]...)
	}
	if i < len(f.free) && s.off+s.size == f.free[i].off {
		s.size += f.free[i].size
		f.free = append(f.free[:i], f.free[i+1:]...)
	}

	f.free = append(f.free, span{})
	copy(f.free[i+1:], f.free[i:])
	f.free[i] = s
}

func (f *Freelist) isFree(off int) bool {
	i := sort.Search(len(f.free), func(i int) bool { return f.free[i].off > off })
	return i > 0 && off < f.free[i-1].off+f.free[i-1].size
}

// Owns reports whether p lies inside the region.
func (f *Freelist) Owns(p []byte, _ Layout) bool {
	_, ok := f.offset(p)
	return ok
}

// SetID records the registry id.
func (f *Freelist) SetID(id AllocID) { f.id = id }

// ID returns the registry id.
func (f *Freelist) ID() AllocID { return f.id }

// Reset frees every block.
func (f *Freelist) Reset() {
	clear(f.allocs)
	f.free = f.free[:0]
	if len(f.buf) > 0 {
		f.free = append(f.free, span{off: 0, size: len(f.buf)})
	}
}

// FreeBytes returns the total size of all free spans.
func (f *Freelist) FreeBytes() int {
	n := 0
	for _, s := range f.free {
		n += s.size
	}
	return n
}

// Spans returns the number of free spans. A fully coalesced empty allocator has one.
func (f *Freelist) Spans() int { return len(f.free) }

// Live returns the number of live blocks.
func (f *Freelist) Live() int { return len(f.allocs) }

// Close returns the buffer to the source it came from, if any.
func (f *Freelist) Close() error {
	f.back.release()
	f.region = region{}
	f.Reset()
	return nil
}

var _ Allocator = (*Freelist)(nil)
