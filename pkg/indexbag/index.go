package indexbag

import (
	"cmp"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Handle construction errors.
var (
	ErrZeroPosition   = errors.New("indexbag: position must be positive")
	ErrMalformedIndex = errors.New("indexbag: malformed index")
)

// Index is a handle to a value stored in a Bag. It is a plain value: copy it,
// store it, compare it with ==. It does not keep the value alive, and it
// stops resolving once the slot it points to is removed or reused.
type Index struct {
	position   uint64
	generation uint64
}

// NewIndex rebuilds a handle from its raw parts, e.g. after persisting them.
func NewIndex(position, generation uint64) (Index, error) {
	if position == 0 {
		return Index{}, ErrZeroPosition
	}

	return Index{position: position, generation: generation}, nil
}

// Position returns the slot position. It is always positive for handles
// returned by a Bag.
func (idx Index) Position() uint64 {
	return idx.position
}

// Generation returns the slot generation the handle was issued for.
func (idx Index) Generation() uint64 {
	return idx.generation
}

// Uint64 returns the raw position. The generation is not included and must be
// carried separately to round-trip a handle.
func (idx Index) Uint64() uint64 {
	return idx.position
}

// Depth returns the tree level of the slot, 0 for the root.
func (idx Index) Depth() int {
	if idx.position == 0 {
		return 0
	}

	return bits.Len64(idx.position) - 1
}

// IsZero reports whether idx is the zero Index, which never resolves.
func (idx Index) IsZero() bool {
	return idx.position == 0
}

// Compare orders handles by position, then by generation.
func (idx Index) Compare(other Index) int {
	if c := cmp.Compare(idx.position, other.position); c != 0 {
		return c
	}

	return cmp.Compare(idx.generation, other.generation)
}

// String formats the handle as #position@generation.
func (idx Index) String() string {
	return "#" + strconv.FormatUint(idx.position, 10) + "@" + strconv.FormatUint(idx.generation, 10)
}

// ParseIndex parses the #position@generation form produced by String.
func ParseIndex(text string) (Index, error) {
	body, ok := strings.CutPrefix(text, "#")
	if !ok {
		return Index{}, fmt.Errorf("%w: %q", ErrMalformedIndex, text)
	}

	posText, genText, ok := strings.Cut(body, "@")
	if !ok {
		return Index{}, fmt.Errorf("%w: %q", ErrMalformedIndex, text)
	}

	position, err := strconv.ParseUint(posText, 10, 64)
	if err != nil {
		return Index{}, fmt.Errorf("%w: %q: %w", ErrMalformedIndex, text, err)
	}

	generation, err := strconv.ParseUint(genText, 10, 64)
	if err != nil {
		return Index{}, fmt.Errorf("%w: %q: %w", ErrMalformedIndex, text, err)
	}

	return NewIndex(position, generation)
}

// MarshalText implements [encoding.TextMarshaler].
func (idx Index) MarshalText() ([]byte, error) {
	return []byte(idx.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (idx *Index) UnmarshalText(text []byte) error {
	parsed, err := ParseIndex(string(text))
	if err != nil {
		return err
	}

	*idx = parsed

	return nil
}

func (idx Index) path() Path {
	return NewPath(idx.position)
}
