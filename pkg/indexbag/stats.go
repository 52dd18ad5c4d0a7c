package indexbag

import "math/bits"

// Stats holds bag occupancy figures.
type Stats struct {
	PoolSize uint64 // Highest position ever allocated.
	Unused   uint64 // Vacant slots awaiting reuse.
	Live     uint64
	Depth    int // Levels below the root; 0 for a bag with at most one slot.
	Pages    int // 0 while hibernated.
	PageSize int

	Hibernated     bool
	CompressedSize int // Bytes held by compressed columns while hibernated.
}

// Occupancy returns the fraction of allocated slots holding a value.
func (s Stats) Occupancy() float64 {
	if s.PoolSize == 0 {
		return 0
	}

	return float64(s.Live) / float64(s.PoolSize)
}

// Stats returns current bag statistics. Unlike every other method it may be
// called on a hibernated bag.
func (bag *Bag[T]) Stats() Stats {
	stats := Stats{
		PoolSize: bag.poolSize,
		PageSize: bag.tree.pageSize(),
	}

	if bag.poolSize > 0 {
		stats.Depth = bits.Len64(bag.poolSize) - 1
	}

	if frozen := bag.tree.frozen; frozen != nil {
		stats.Hibernated = true
		stats.CompressedSize = frozen.compressedSize()
		stats.Unused = frozen.rootVacant
	} else {
		stats.Pages = len(bag.tree.pages)
		stats.Unused = bag.tree.vacant()
	}

	stats.Live = stats.PoolSize - stats.Unused

	return stats
}
