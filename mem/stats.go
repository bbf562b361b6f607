package mem

import "github.com/joshuapare/allockit/alloc"

// Stats counts the traffic through one allocator.
type Stats struct {
	ID        alloc.AllocID
	Name      string
	Allocs    uint64 // successful allocations
	Frees     uint64
	Failures  uint64 // requests the allocator rejected
	Live      int64  // blocks currently allocated
	LiveBytes int64
	PeakBytes int64
}

func (s *Stats) recordAlloc(size int) {
	s.Allocs++
	s.Live++
	s.LiveBytes += int64(size)
	if s.LiveBytes > s.PeakBytes {
		s.PeakBytes = s.LiveBytes
	}
}

func (s *Stats) recordFree(size int) {
	s.Frees++
	s.Live--
	s.LiveBytes -= int64(size)
}
