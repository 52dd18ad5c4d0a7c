// Package indexbag provides a generational slot allocator: a bag of values
// addressed by small copyable handles that detect reuse of their slot.
//
// Slots form a binary tree addressed by dense positions (1 is the root, 2 and
// 3 its children, and so on). Removed slots are reused before the tree grows,
// and each reuse bumps the slot generation so that handles issued for an
// earlier occupant stop resolving.
//
// A Bag is not safe for concurrent use.
package indexbag

import "math/bits"

const (
	// DefaultPageSize is the default number of slots per arena page.
	DefaultPageSize = 1024

	// minPageSize is the floor for WithPageSize.
	minPageSize = 16

	// maxPageSize keeps page offsets within a uint32 node id.
	maxPageSize = 1 << 24
)

// Bag stores values of type T and hands out Index handles to them.
type Bag[T any] struct {
	tree tree[T]

	// poolSize is the highest position ever allocated.
	poolSize uint64

	hibernationThreshold int
}

type options struct {
	pageSize             int
	hibernationThreshold int
}

// Option configures a Bag.
type Option func(*options)

// WithPageSize sets the number of slots allocated at once. It is rounded up
// to a power of two and clamped to [16, 16M].
func WithPageSize(n int) Option {
	return func(opts *options) {
		opts.pageSize = n
	}
}

// WithHibernationThreshold sets the minimum number of allocated slots below
// which Hibernate does nothing.
func WithHibernationThreshold(n int) Option {
	return func(opts *options) {
		opts.hibernationThreshold = n
	}
}

// New creates an empty bag.
func New[T any](opts ...Option) *Bag[T] {
	resolved := options{pageSize: DefaultPageSize}

	for _, opt := range opts {
		opt(&resolved)
	}

	return &Bag[T]{
		tree:                 newTree[T](normalizePageSize(resolved.pageSize)),
		hibernationThreshold: max(resolved.hibernationThreshold, 0),
	}
}

func normalizePageSize(n int) int {
	n = min(max(n, minPageSize), maxPageSize)

	return 1 << bits.Len(uint(n-1))
}

// PoolSize returns the highest position ever allocated. It never decreases:
// removals leave vacant slots behind rather than shrinking the pool.
func (bag *Bag[T]) PoolSize() uint64 {
	return bag.poolSize
}

// UnusedIndexes returns the number of allocated slots that currently hold no
// value and will be reused by the next inserts.
func (bag *Bag[T]) UnusedIndexes() uint64 {
	bag.tree.mustBeBooted()

	return bag.tree.vacant()
}

// Len returns the number of values in the bag.
func (bag *Bag[T]) Len() uint64 {
	return bag.poolSize - bag.UnusedIndexes()
}

// Insert stores value and returns its handle. A vacant slot is reused when
// one exists; otherwise the pool grows by exactly one position.
func (bag *Bag[T]) Insert(value T) Index {
	bag.tree.mustBeBooted()

	idx := bag.tree.insert(value, NewPath(bag.poolSize+1))

	if idx.position > bag.poolSize {
		doAssert(idx.position == bag.poolSize+1, "insert skipped a position")

		bag.poolSize = idx.position
	}

	return idx
}

// Remove takes the value addressed by idx out of the bag. It returns false,
// and changes nothing, when idx does not resolve: the slot was never
// allocated, is already vacant, or has been reused since idx was issued.
func (bag *Bag[T]) Remove(idx Index) (T, bool) {
	bag.tree.mustBeBooted()

	return bag.tree.remove(idx)
}

// Get returns the value addressed by idx.
func (bag *Bag[T]) Get(idx Index) (T, bool) {
	bag.tree.mustBeBooted()

	nd := bag.tree.lookup(idx)
	if nd == nil {
		var zero T

		return zero, false
	}

	return nd.value, true
}

// GetMut returns a pointer to the value addressed by idx, or nil. The pointer
// may be used to update the value in place until the value is removed or the
// bag is hibernated.
func (bag *Bag[T]) GetMut(idx Index) *T {
	bag.tree.mustBeBooted()

	nd := bag.tree.lookup(idx)
	if nd == nil {
		return nil
	}

	return &nd.value
}

// Contains reports whether idx resolves to a value.
func (bag *Bag[T]) Contains(idx Index) bool {
	bag.tree.mustBeBooted()

	return bag.tree.lookup(idx) != nil
}

// Hibernate compresses the slot bookkeeping to save memory. The bag cannot be
// used until Boot is called. It does nothing while fewer slots than the
// hibernation threshold are allocated.
func (bag *Bag[T]) Hibernate() {
	if bag.tree.frozen == nil && int(bag.tree.size-1) < bag.hibernationThreshold {
		return
	}

	bag.tree.hibernate()
}

// Boot performs the opposite of Hibernate. Booting a bag that is not
// hibernated does nothing.
func (bag *Bag[T]) Boot() {
	bag.tree.boot()
}

// IsHibernated reports whether Boot must be called before using the bag.
func (bag *Bag[T]) IsHibernated() bool {
	return bag.tree.frozen != nil
}
