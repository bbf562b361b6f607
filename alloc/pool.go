package alloc

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/joshuapare/allockit/internal/align"
)

const poolNone = math.MaxUint32

// Pool hands out fixed-size blocks.
//
// Free blocks form an intrusive singly linked list: the first four bytes of a free
// block hold the index of the next free block (little-endian), poolNone ending the
// list. A separate used bit per block catches double frees.
type Pool struct {
	region
	block int
	count int
	head  uint32
	free  int
	used  []uint64
	id    AllocID
	back  *backing
}

// NewPool returns a pool of len(buf)/block blocks.
func NewPool(buf []byte, block int) (*Pool, error) {
	if block < Word || block%Word != 0 {
		return nil, fmt.Errorf("%w: pool block size %d must be a multiple of %d", ErrInvalidConfig, block, Word)
	}
	if len(buf)%block != 0 {
		return nil, fmt.Errorf("%w: pool buffer of %d bytes is not a multiple of block size %d", ErrInvalidConfig, len(buf), block)
	}
	count := len(buf) / block
	if count >= poolNone {
		return nil, fmt.Errorf("%w: pool of %d blocks is too large", ErrInvalidConfig, count)
	}

	p := &Pool{
		region: newRegion(buf),
		block:  block,
		count:  count,
		head:   poolNone,
		used:   make([]uint64, (count+63)/64),
	}
	p.Reset()
	return p, nil
}

// guaranteedAlign is the alignment every block in the grid satisfies.
func (p *Pool) guaranteedAlign() int {
	return min(align.LowBit(p.base), align.LowBit(uintptr(p.block)))
}

// Alloc pops the free-list head. It returns nil when l does not fit a block or
// the pool is empty.
func (p *Pool) Alloc(l Layout) []byte {
	if !l.Valid() || l.Size > p.block || l.Align > p.guaranteedAlign() || p.head == poolNone {
		return nil
	}
	idx := int(p.head)
	off := idx * p.block
	p.head = binary.LittleEndian.Uint32(p.buf[off:])
	p.used[idx/64] |= 1 << (idx % 64)
	p.free--
	return p.slice(off, l.Size)
}

// Dealloc pushes b back onto the free list.
func (p *Pool) Dealloc(b []byte, _ Layout) {
	off, ok := p.offset(b)
	if !ok || off%p.block != 0 {
		violate(ErrNotOwned, b, p.id, "pool with %d-byte blocks", p.block)
	}
	idx := off / p.block
	if p.used[idx/64]&(1<<(idx%64)) == 0 {
		violate(ErrDoubleFree, b, p.id, "pool block %d", idx)
	}
	p.used[idx/64] &^= 1 << (idx % 64)
	binary.LittleEndian.PutUint32(p.buf[off:], p.head)
	p.head = uint32(idx)
	p.free++
}

// Owns reports whether b lies inside the pool.
func (p *Pool) Owns(b []byte, _ Layout) bool {
	_, ok := p.offset(b)
	return ok
}

// SetID records the registry id.
func (p *Pool) SetID(id AllocID) { p.id = id }

// ID returns the registry id.
func (p *Pool) ID() AllocID { return p.id }

// Reset threads every block back onto the free list in address order.
func (p *Pool) Reset() {
	clear(p.used)
	for i := range p.count {
		next := uint32(i + 1)
		if i == p.count-1 {
			next = poolNone
		}
		binary.LittleEndian.PutUint32(p.buf[i*p.block:], next)
	}
	p.head = poolNone
	if p.count > 0 {
		p.head = 0
	}
	p.free = p.count
}

// Free returns the number of free blocks.
func (p *Pool) Free() int { return p.free }

// Blocks returns the total number of blocks.
func (p *Pool) Blocks() int { return p.count }

// BlockSize returns the size of each block.
func (p *Pool) BlockSize() int { return p.block }

// InUse returns the number of allocated blocks, counted from the used bits.
func (p *Pool) InUse() int {
	n := 0
	for _, w := range p.used {
		n += bits.OnesCount64(w)
	}
	return n
}

// Close returns the buffer to the source it came from, if any.
func (p *Pool) Close() error {
	p.back.release()
	p.region = region{}
	p.count, p.free, p.head = 0, 0, poolNone
	p.used = nil
	return nil
}

var _ Allocator = (*Pool)(nil)
