// Package topology builds a set of registered allocators from a YAML description.
//
// Example:
//
//	default: general
//	allocators:
//	  - name: frame
//	    kind: linear
//	    size: 64KiB
//	  - name: general
//	    kind: segregator
//	    boundary: 256
//	    small: { kind: pool, size: 64KiB, block: 256 }
//	    large: { kind: fallback, main: { kind: freelist, size: 1MiB }, fallback: { kind: malloc } }
//	  - name: scratch
//	    kind: expandable
//	    arena: general
//	    instance: { kind: linear, size: 16KiB }
//
// Top-level entries are registered in document order, so an expandable arena may
// only name an allocator defined above it (or "malloc").
package topology

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidTopology indicates a malformed or inconsistent topology document.
var ErrInvalidTopology = errors.New("topology: invalid topology")

// Kinds of allocator a Spec can describe.
const (
	KindLinear      = "linear"
	KindStack       = "stack"
	KindPool        = "pool"
	KindBitmap      = "bitmap"
	KindFreelist    = "freelist"
	KindMalloc      = "malloc"
	KindFallback    = "fallback"
	KindSegregator  = "segregator"
	KindExpandable  = "expandable"
	KindSizeClassed = "sizeclassed"
)

// MallocName refers to the manager's heap allocator wherever a name is expected.
const MallocName = "malloc"

// Spec describes one allocator. Which fields apply depends on Kind.
type Spec struct {
	Name string `yaml:"name,omitempty"`
	Kind string `yaml:"kind"`

	Size   Size   `yaml:"size,omitempty"`   // region size of primitives
	Align  int    `yaml:"align,omitempty"`  // stack: max alignment (default 16)
	Block  Size   `yaml:"block,omitempty"`  // pool, bitmap
	Count  int    `yaml:"count,omitempty"`  // bitmap: data blocks (default size/block)
	Policy string `yaml:"policy,omitempty"` // freelist: first-fit | best-fit

	Boundary Size  `yaml:"boundary,omitempty"` // segregator
	Small    *Spec `yaml:"small,omitempty"`
	Large    *Spec `yaml:"large,omitempty"` // segregator, sizeclassed (default malloc)

	Main     *Spec `yaml:"main,omitempty"` // fallback
	Fallback *Spec `yaml:"fallback,omitempty"`

	Arena    string `yaml:"arena,omitempty"` // expandable
	Instance *Spec  `yaml:"instance,omitempty"`

	Classes        string `yaml:"classes,omitempty"`          // sizeclassed: fine | balanced | coarse
	BlocksPerClass int    `yaml:"blocks_per_class,omitempty"` // sizeclassed (default 64)
}

// Topology is a parsed document.
type Topology struct {
	Default    string `yaml:"default,omitempty"`
	Allocators []Spec `yaml:"allocators"`
}

// Parse decodes and validates a topology document. Unknown fields are rejected.
func Parse(data []byte) (*Topology, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Topology
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads and parses a topology file.
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Marshal encodes t back to YAML.
func (t *Topology) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Names returns the top-level allocator names in document order.
func (t *Topology) Names() []string {
	names := make([]string, len(t.Allocators))
	for i, s := range t.Allocators {
		names[i] = s.Name
	}
	return names
}
