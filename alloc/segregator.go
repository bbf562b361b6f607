package alloc

import "errors"

// Segregator routes requests of size <= boundary to small and the rest to large.
// The boundary is fixed at construction so a block always frees through the side
// that allocated it.
type Segregator struct {
	boundary int
	small    Allocator
	large    Allocator
	id       AllocID
}

// NewSegregator returns a size router.
func NewSegregator(boundary int, small, large Allocator) *Segregator {
	return &Segregator{boundary: boundary, small: small, large: large}
}

func (s *Segregator) route(l Layout) Allocator {
	if l.Size <= s.boundary {
		return s.small
	}
	return s.large
}

// Alloc routes by size: at most the boundary goes to the small side.
func (s *Segregator) Alloc(l Layout) []byte {
	return s.route(l).Alloc(l)
}

// Dealloc routes exactly as Alloc did.
func (s *Segregator) Dealloc(p []byte, l Layout) {
	s.route(l).Dealloc(p, l)
}

// Owns asks the side l routes to.
func (s *Segregator) Owns(p []byte, l Layout) bool {
	return s.route(l).Owns(p, l)
}

// SetID stamps both sides.
func (s *Segregator) SetID(id AllocID) {
	s.id = id
	s.small.SetID(id)
	s.large.SetID(id)
}

func (s *Segregator) ID() AllocID { return s.id }

// Boundary returns the largest size routed to the small side.
func (s *Segregator) Boundary() int { return s.boundary }

// SupportsFree is true only when both sides support freeing.
func (s *Segregator) SupportsFree() bool {
	return SupportsFree(s.small) && SupportsFree(s.large)
}

// Close closes both sides.
func (s *Segregator) Close() error {
	return errors.Join(Close(s.small), Close(s.large))
}

var _ Allocator = (*Segregator)(nil)
