package alloc

import (
	"fmt"
	"math/bits"

	"github.com/joshuapare/allockit/internal/align"
)

// Bitmap allocates runs of fixed-size blocks tracked by one bit per block.
//
// The bit set lives in the leading blocks of the buffer itself:
//
//	[ management blocks | data block 0 | data block 1 | ... ]
//
// Bit i of management byte i/8 is set while data block i is in use.
type Bitmap struct {
	region
	block   int
	mgmt    int // number of leading management blocks
	count   int // number of data blocks
	dataOff int
	id      AllocID
	back    *backing
}

// BitmapBufferSize returns the buffer size needed for count data blocks of the given size,
// management blocks included.
func BitmapBufferSize(block, count int) int {
	mgmtBytes := (count + 7) / 8
	mgmt := (mgmtBytes + block - 1) / block
	return (mgmt + count) * block
}

// NewBitmap returns a bitmap allocator over buf. Trailing bytes that do not fill a
// whole block are ignored.
func NewBitmap(buf []byte, block int) (*Bitmap, error) {
	if block < Word || block%Word != 0 {
		return nil, fmt.Errorf("%w: bitmap block size %d must be a multiple of %d", ErrInvalidConfig, block, Word)
	}
	total := len(buf) / block
	mgmt := (total + 8*block) / (8*block + 1) // ceil(total / (8*block+1))
	count := total - mgmt
	if count <= 0 {
		return nil, fmt.Errorf("%w: bitmap buffer of %d bytes holds no data blocks", ErrInvalidConfig, len(buf))
	}

	b := &Bitmap{
		region:  newRegion(buf),
		block:   block,
		mgmt:    mgmt,
		count:   count,
		dataOff: mgmt * block,
	}
	b.Reset()
	return b, nil
}

func (b *Bitmap) isSet(i int) bool { return b.buf[i/8]&(1<<(i%8)) != 0 }
func (b *Bitmap) set(i int) { b.buf[i/8] |= 1 << (i % 8) }
func (b *Bitmap) unset(i int) { b.buf[i/8] &^= 1 << (i % 8) }

func (b *Bitmap) blocksFor(size int) int {
	return (size + b.block - 1) / b.block
}

// Alloc finds the first run of clear bits long enough for l whose start address
// satisfies l.Align.
func (b *Bitmap) Alloc(l Layout) []byte {
	if !l.Valid() || b.count == 0 {
		return nil
	}
	n := b.blocksFor(l.Size)
	if n > b.count {
		return nil
	}
	dataBase := b.base + uintptr(b.dataOff)

	for i := 0; i+n <= b.count; {
		if align.Padding(dataBase+uintptr(i*b.block), l.Align) != 0 {
			i++
			continue
		}
		run := 0
		for run < n && !b.isSet(i+run) {
			run++
		}
		if run == n {
			for j := i; j < i+n; j++ {
				b.set(j)
			}
			return b.slice(b.dataOff+i*b.block, l.Size)
		}
		// Block i+run is taken; no run can start before it.
		i += run + 1
	}
	return nil
}

// Dealloc clears the run of blocks starting at p. Freeing a clear block is a double free.
func (b *Bitmap) Dealloc(p []byte, l Layout) {
	off, ok := b.offset(p)
	if !ok || off < b.dataOff || (off-b.dataOff)%b.block != 0 {
		violate(ErrNotOwned, p, b.id, "bitmap with %d-byte blocks", b.block)
	}
	first := (off - b.dataOff) / b.block
	n := b.blocksFor(l.Size)
	if first+n > b.count {
		violate(ErrLayoutMismatch, p, b.id, "%d blocks from block %d overrun the bitmap", n, first)
	}
	for i := first; i < first+n; i++ {
		if !b.isSet(i) {
			violate(ErrDoubleFree, p, b.id, "bitmap block %d already clear", i)
		}
	}
	for i := first; i < first+n; i++ {
		b.unset(i)
	}
}

// Owns reports whether p starts inside the data area.
func (b *Bitmap) Owns(p []byte, _ Layout) bool {
	off, ok := b.offset(p)
	return ok && off >= b.dataOff && off < b.dataOff+b.count*b.block
}

// SetID records the registry id.
func (b *Bitmap) SetID(id AllocID) { b.id = id }

// ID returns the registry id.
func (b *Bitmap) ID() AllocID { return b.id }

// Reset clears every bit.
func (b *Bitmap) Reset() {
	clear(b.buf[:b.dataOff])
}

// Blocks returns the number of data blocks.
func (b *Bitmap) Blocks() int { return b.count }

// FreeBlocks returns the number of clear bits.
func (b *Bitmap) FreeBlocks() int {
	used := 0
	for _, c := range b.buf[:(b.count+7)/8] {
		used += bits.OnesCount8(c)
	}
	return b.count - used
}

// ManagementBlocks returns how many leading blocks hold the bit set.
func (b *Bitmap) ManagementBlocks() int { return b.mgmt }

// Close returns the buffer to the source it came from, if any.
func (b *Bitmap) Close() error {
	b.back.release()
	b.region = region{}
	b.count, b.mgmt, b.dataOff = 0, 0, 0
	return nil
}

var _ Allocator = (*Bitmap)(nil)
