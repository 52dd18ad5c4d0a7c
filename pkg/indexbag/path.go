package indexbag

import "math/bits"

// Step is a single move from a slot to one of its children.
type Step uint8

// Steps of a walk.
const (
	Left Step = iota
	Right
)

// String returns "L" or "R".
func (step Step) String() string {
	if step == Right {
		return "R"
	}

	return "L"
}

// Path is the walk from the root slot to the slot at a position.
//
// A position is (1 << depth) | steps: the leading bit marks the depth and the
// remaining bits are the steps, the least significant one taken first. Bit
// clear goes Left, bit set goes Right. Position 1 is the root itself.
type Path struct {
	steps     uint64
	depth     uint8
	remaining uint8
}

// NewPath decodes position into a walk. Position 0 addresses nothing and
// panics.
func NewPath(position uint64) Path {
	if position == 0 {
		panic("indexbag: position 0 has no path")
	}

	depth := uint8(bits.Len64(position) - 1)

	return Path{
		steps:     position &^ (1 << depth),
		depth:     depth,
		remaining: depth,
	}
}

// Next returns the next step; ok is false once the walk is exhausted.
func (path *Path) Next() (step Step, ok bool) {
	if path.remaining == 0 {
		return Left, false
	}

	step = Step(path.steps & 1)
	path.steps >>= 1
	path.remaining--

	return step, true
}

// Depth returns the total number of steps of the walk.
func (path Path) Depth() int {
	return int(path.depth)
}

// Remaining returns the number of steps not yet taken.
func (path Path) Remaining() int {
	return int(path.remaining)
}

// Steps drains a copy of the walk into a slice, mostly for diagnostics.
func (path Path) Steps() []Step {
	steps := make([]Step, 0, path.remaining)

	for step, ok := path.Next(); ok; step, ok = path.Next() {
		steps = append(steps, step)
	}

	return steps
}

// walker accumulates the position of a descent, one step at a time.
type walker struct {
	steps uint64
	depth uint8
}

func (w *walker) push(step Step) {
	if w.depth >= maxDepth {
		panic("indexbag: tree depth exceeds the position range")
	}

	w.steps |= uint64(step) << w.depth
	w.depth++
}

func (w walker) position() uint64 {
	return (1 << w.depth) | w.steps
}

// maxDepth is the deepest level whose positions still fit in a uint64.
const maxDepth = 63
