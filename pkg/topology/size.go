package topology

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Size is a byte count that unmarshals from an integer or from a string with a
// binary suffix: "512", "64KiB", "1 MiB", "2GiB".
type Size int

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"GiB", 30},
	{"MiB", 20},
	{"KiB", 10},
	{"B", 0},
}

// ParseSize parses a size string.
func ParseSize(s string) (Size, error) {
	s = strings.TrimSpace(s)
	shift := uint(0)
	for _, u := range sizeUnits {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			shift = u.shift
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad size %q", ErrInvalidTopology, s)
	}
	if n > (1<<62)>>shift {
		return 0, fmt.Errorf("%w: size %q overflows", ErrInvalidTopology, s)
	}
	return Size(n << shift), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w: line %d: size must be a scalar", ErrInvalidTopology, value.Line)
	}
	n, err := ParseSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = n
	return nil
}

func (s Size) String() string {
	n := int(s)
	for _, u := range sizeUnits[:3] {
		if unit := 1 << u.shift; n >= unit && n%unit == 0 {
			return strconv.Itoa(n/unit) + u.suffix
		}
	}
	return strconv.Itoa(n)
}
