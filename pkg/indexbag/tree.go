package indexbag

import (
	"fmt"
	"math"
	"math/bits"
)

// leaf is the reserved node id that stands for every unallocated position.
// Its vacant count is always zero, so child lookups need no special casing.
const leaf uint32 = 0

// node is a slot of the tree. Children are node ids, leaf when unallocated.
type node[T any] struct {
	value      T
	generation uint64
	left       uint32
	right      uint32
	occupied   bool

	// vacant counts the slots of this subtree, itself included, that hold
	// no value and can be reused.
	vacant uint64
}

func (nd *node[T]) child(step Step) uint32 {
	if step == Right {
		return nd.right
	}

	return nd.left
}

// tree is a binary tree of slots stored in an arena of fixed-size pages.
// Pages never move once allocated, so pointers into them stay valid while
// the tree grows.
type tree[T any] struct {
	pages     [][]node[T]
	pageShift uint8
	pageMask  uint32

	// size is the number of node ids handed out, the leaf sentinel included.
	size uint32
	root uint32

	// Set while hibernated, see hibernate.go.
	frozen *frozenTree[T]
}

func newTree[T any](pageSize int) tree[T] {
	shift := uint8(bits.TrailingZeros(uint(pageSize)))
	t := tree[T]{
		pageShift: shift,
		pageMask:  uint32(1)<<shift - 1,
		root:      leaf,
	}
	t.pages = [][]node[T]{make([]node[T], pageSize)}
	// Node #0 is the leaf sentinel.
	t.size = 1

	return t
}

func (t *tree[T]) pageSize() int {
	return 1 << t.pageShift
}

func (t *tree[T]) at(nodeIdx uint32) *node[T] {
	return &t.pages[nodeIdx>>t.pageShift][nodeIdx&t.pageMask]
}

func (t *tree[T]) malloc() uint32 {
	if t.size == math.MaxUint32 {
		panic("indexbag: node arena has reached the maximum value for uint32")
	}

	nodeIdx := t.size
	if int(nodeIdx>>t.pageShift) == len(t.pages) {
		t.pages = append(t.pages, make([]node[T], t.pageSize()))
	}

	t.size++

	return nodeIdx
}

func (t *tree[T]) mustBeBooted() {
	if t.frozen != nil {
		panic("indexbag: hibernated bags cannot be used")
	}
}

// find walks path and returns the node at its end, or leaf if the walk runs
// into an unallocated position.
func (t *tree[T]) find(path Path) uint32 {
	nodeIdx := t.root

	for step, ok := path.Next(); ok; step, ok = path.Next() {
		if nodeIdx == leaf {
			return leaf
		}

		nodeIdx = t.at(nodeIdx).child(step)
	}

	return nodeIdx
}

// lookup returns the occupied node addressed by idx, or nil when the position
// is unallocated, vacant or was reused since idx was issued.
func (t *tree[T]) lookup(idx Index) *node[T] {
	if idx.position == 0 {
		return nil
	}

	nodeIdx := t.find(idx.path())
	if nodeIdx == leaf {
		return nil
	}

	nd := t.at(nodeIdx)
	if !nd.occupied || nd.generation != idx.generation {
		return nil
	}

	return nd
}

// insert stores value in the first vacant slot met by a descent that follows
// subtrees with vacancies, left before right. When there is none the value
// goes at the end of appendPath, which must lead to the first unallocated
// position.
func (t *tree[T]) insert(value T, appendPath Path) Index {
	var (
		walk   walker
		parent = leaf
		dir    Step
	)

	nodeIdx := t.root

	for {
		if nodeIdx == leaf {
			if appendPath.Remaining() != 0 {
				panic(fmt.Sprintf("indexbag: invalid append path: leaf reached at depth %d with %d steps left",
					walk.depth, appendPath.Remaining()))
			}

			newIdx := t.malloc()
			nd := t.at(newIdx)
			nd.value = value
			nd.occupied = true
			t.link(parent, dir, newIdx)

			return Index{position: walk.position(), generation: 0}
		}

		nd := t.at(nodeIdx)

		if !nd.occupied {
			doAssert(nd.vacant > 0, "vacant slot not counted")

			nd.value = value
			nd.occupied = true
			nd.generation++
			nd.vacant--

			return Index{position: walk.position(), generation: nd.generation}
		}

		var step Step

		switch {
		case t.at(nd.left).vacant > 0:
			doAssert(nd.vacant >= t.at(nd.left).vacant, "left subtree has more vacancies than its parent")

			nd.vacant--
			step = Left
		case t.at(nd.right).vacant > 0:
			doAssert(nd.vacant >= t.at(nd.right).vacant, "right subtree has more vacancies than its parent")

			nd.vacant--
			step = Right
		default:
			doAssert(nd.vacant == 0, "vacancies counted but none found below")

			var ok bool

			step, ok = appendPath.Next()
			if !ok {
				panic(fmt.Sprintf("indexbag: invalid append path: full slot reached at position %d", walk.position()))
			}
		}

		walk.push(step)
		parent = nodeIdx
		dir = step
		nodeIdx = nd.child(step)
	}
}

func (t *tree[T]) link(parent uint32, dir Step, child uint32) {
	if parent == leaf {
		t.root = child

		return
	}

	if dir == Right {
		t.at(parent).right = child
	} else {
		t.at(parent).left = child
	}
}

// remove takes the value out of the slot addressed by idx. Every slot on the
// way down, the target included, gains one vacancy.
func (t *tree[T]) remove(idx Index) (T, bool) {
	var (
		zero  T
		chain [maxDepth + 1]uint32
		depth int
	)

	if idx.position == 0 {
		return zero, false
	}

	path := idx.path()
	nodeIdx := t.root

	for {
		if nodeIdx == leaf {
			return zero, false
		}

		chain[depth] = nodeIdx
		depth++

		step, ok := path.Next()
		if !ok {
			break
		}

		nodeIdx = t.at(nodeIdx).child(step)
	}

	nd := t.at(nodeIdx)
	if !nd.occupied || nd.generation != idx.generation {
		return zero, false
	}

	value := nd.value
	nd.value = zero
	nd.occupied = false

	for _, ancestor := range chain[:depth] {
		t.at(ancestor).vacant++
	}

	return value, true
}

func (t *tree[T]) vacant() uint64 {
	return t.at(t.root).vacant
}

func doAssert(condition bool, message string) {
	if !condition {
		panic("indexbag: assertion failed: " + message)
	}
}
