package indexbag

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidSnapshot is returned by Restore for snapshots that do not
// describe a bag.
var ErrInvalidSnapshot = errors.New("indexbag: invalid snapshot")

// Snapshot is the serializable state of a bag: the compressed bookkeeping
// columns of its hibernated form plus the stored values, indexed by node id.
// Node 0 is the leaf sentinel.
type Snapshot[T any] struct {
	Columns              [][]byte
	Values               []T
	PoolSize             uint64
	PageSize             int
	HibernationThreshold int
	Root                 uint32
}

// Snapshot captures the bag. A live bag is only read, so pointers returned by
// GetMut stay valid.
func (bag *Bag[T]) Snapshot() Snapshot[T] {
	frozen := bag.tree.frozen
	if frozen == nil {
		frozen = bag.tree.freeze()
	}

	columns := make([][]byte, len(frozen.columns))
	for i, col := range frozen.columns {
		columns[i] = slices.Clone(col)
	}

	return Snapshot[T]{
		Columns:              columns,
		Values:               slices.Clone(frozen.values),
		PoolSize:             bag.poolSize,
		PageSize:             bag.tree.pageSize(),
		HibernationThreshold: bag.hibernationThreshold,
		Root:                 bag.tree.root,
	}
}

// Restore rebuilds a live bag from a snapshot. Handles issued by the bag the
// snapshot was taken from resolve in the restored bag.
func Restore[T any](snap Snapshot[T]) (*Bag[T], error) {
	if len(snap.Columns) != columnCount {
		return nil, fmt.Errorf("%w: %d columns, want %d", ErrInvalidSnapshot, len(snap.Columns), columnCount)
	}

	size := len(snap.Values)
	if size == 0 || size > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d nodes", ErrInvalidSnapshot, size)
	}

	if snap.PoolSize != uint64(size-1) {
		return nil, fmt.Errorf("%w: pool size %d with %d nodes", ErrInvalidSnapshot, snap.PoolSize, size)
	}

	if int(snap.Root) >= size || (snap.Root == leaf) != (size == 1) {
		return nil, fmt.Errorf("%w: root %d with %d nodes", ErrInvalidSnapshot, snap.Root, size)
	}

	bag := New[T](WithPageSize(snap.PageSize), WithHibernationThreshold(snap.HibernationThreshold))

	frozen := &frozenTree[T]{values: slices.Clone(snap.Values), size: uint32(size)}
	copy(frozen.columns[:], snap.Columns)

	bag.tree.pages = nil
	bag.tree.frozen = frozen
	bag.tree.size = uint32(size)
	bag.tree.root = snap.Root
	bag.poolSize = snap.PoolSize

	err := bag.tree.thaw()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	err = bag.tree.checkShape(snap.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}

	return bag, nil
}

// checkShape verifies that the nodes form one tree under the root, that
// every node sits at a position within poolSize and that every vacancy count
// matches its subtree.
func (t *tree[T]) checkShape(poolSize uint64) error {
	sentinel := t.at(leaf)
	if sentinel.occupied || sentinel.vacant != 0 || sentinel.left != leaf || sentinel.right != leaf {
		return errors.New("leaf sentinel is not blank")
	}

	for nodeIdx := uint32(1); nodeIdx < t.size; nodeIdx++ {
		nd := t.at(nodeIdx)
		if nd.left >= t.size || nd.right >= t.size {
			return fmt.Errorf("node %d links outside the arena", nodeIdx)
		}
	}

	if t.root == leaf {
		return nil
	}

	type frame struct {
		nodeIdx uint32
		walk    walker
	}

	seen := make([]bool, t.size)
	order := make([]uint32, 0, t.size-1)
	stack := []frame{{nodeIdx: t.root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[top.nodeIdx] {
			return fmt.Errorf("node %d is reached twice", top.nodeIdx)
		}

		seen[top.nodeIdx] = true
		order = append(order, top.nodeIdx)

		// Positions past poolSize are rejected before the walk gets deep
		// enough to overflow.
		if position := top.walk.position(); position > poolSize {
			return fmt.Errorf("node %d sits at position %d beyond pool size %d", top.nodeIdx, position, poolSize)
		}

		nd := t.at(top.nodeIdx)

		for _, step := range [...]Step{Left, Right} {
			child := nd.child(step)
			if child == leaf {
				continue
			}

			walk := top.walk
			walk.push(step)
			stack = append(stack, frame{nodeIdx: child, walk: walk})
		}
	}

	if reached := len(order); reached != int(t.size)-1 {
		return fmt.Errorf("%d of %d nodes reachable from the root", reached, t.size-1)
	}

	// Children come after their parent in order, so a reverse sweep counts
	// subtrees bottom-up.
	counts := make([]uint64, t.size)

	for i := len(order) - 1; i >= 0; i-- {
		nodeIdx := order[i]
		nd := t.at(nodeIdx)

		count := counts[nd.left] + counts[nd.right]
		if !nd.occupied {
			count++
		}

		if nd.vacant != count {
			return fmt.Errorf("node %d counts %d vacancies, its subtree has %d", nodeIdx, nd.vacant, count)
		}

		counts[nodeIdx] = count
	}

	return nil
}
