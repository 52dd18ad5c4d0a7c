package indexbag

import (
	"fmt"
	"sync"

	"github.com/Sumatoshi-tech/indexbag/pkg/safeconv"
)

// Columns of a hibernated tree. Nodes are de-interleaved to achieve a better
// compression ratio.
const (
	colGeneration = iota
	colVacant
	colLeft
	colRight
	colOccupied
	columnCount
)

// frozenTree holds the compressed bookkeeping of a hibernated tree. Values
// are kept as they are, indexed by node id.
type frozenTree[T any] struct {
	columns [columnCount][]byte
	values  []T
	size    uint32

	// rootVacant keeps UnusedIndexes readable for statistics.
	rootVacant uint64
}

// hibernate compresses the slot bookkeeping and releases the pages.
func (t *tree[T]) hibernate() {
	if t.frozen != nil {
		panic("indexbag: cannot hibernate an already hibernated bag")
	}

	frozen := t.freeze()
	t.pages = nil
	t.frozen = frozen
}

// freeze compresses the live pages into columns. The pages are only read.
func (t *tree[T]) freeze() *frozenTree[T] {
	size := int(t.size)
	frozen := &frozenTree[T]{values: make([]T, size), size: t.size, rootVacant: t.vacant()}

	wide := [2][]uint64{make([]uint64, size), make([]uint64, size)}
	narrow := [3][]uint32{make([]uint32, size), make([]uint32, size), make([]uint32, size)}

	for nodeIdx := range size {
		nd := t.at(safeconv.MustIntToUint32(nodeIdx))
		frozen.values[nodeIdx] = nd.value
		wide[0][nodeIdx] = nd.generation
		wide[1][nodeIdx] = nd.vacant
		narrow[0][nodeIdx] = nd.left
		narrow[1][nodeIdx] = nd.right

		if nd.occupied {
			narrow[2][nodeIdx] = 1
		}
	}

	wg := &sync.WaitGroup{}
	wg.Add(columnCount)

	for col, buf := range wide {
		go func(colIdx int, data []uint64) {
			defer wg.Done()

			frozen.columns[colIdx] = CompressUint64Slice(data)
		}(colGeneration+col, buf)
	}

	for col, buf := range narrow {
		go func(colIdx int, data []uint32) {
			defer wg.Done()

			frozen.columns[colIdx] = CompressUint32Slice(data)
		}(colLeft+col, buf)
	}

	wg.Wait()

	return frozen
}

// boot restores a hibernated tree. Corrupt columns mean memory corruption and
// panic.
func (t *tree[T]) boot() {
	err := t.thaw()
	if err != nil {
		panic("indexbag: cannot boot: " + err.Error())
	}
}

// thaw decompresses the columns and rebuilds the pages. On error the tree
// stays hibernated.
func (t *tree[T]) thaw() error {
	frozen := t.frozen
	if frozen == nil {
		return nil
	}

	size := int(frozen.size)
	wide := [2][]uint64{make([]uint64, size), make([]uint64, size)}
	narrow := [3][]uint32{make([]uint32, size), make([]uint32, size), make([]uint32, size)}

	var errs [columnCount]error

	wg := &sync.WaitGroup{}
	wg.Add(columnCount)

	for col, buf := range wide {
		go func(colIdx int, data []uint64) {
			defer wg.Done()

			errs[colIdx] = DecompressUint64Slice(frozen.columns[colIdx], data)
		}(colGeneration+col, buf)
	}

	for col, buf := range narrow {
		go func(colIdx int, data []uint32) {
			defer wg.Done()

			errs[colIdx] = DecompressUint32Slice(frozen.columns[colIdx], data)
		}(colLeft+col, buf)
	}

	wg.Wait()

	for colIdx, err := range errs {
		if err != nil {
			return fmt.Errorf("column %d: %w", colIdx, err)
		}
	}

	pageSize := t.pageSize()
	pageCount := (size + pageSize - 1) / pageSize
	t.pages = make([][]node[T], pageCount)

	for pageIdx := range t.pages {
		t.pages[pageIdx] = make([]node[T], pageSize)
	}

	t.frozen = nil

	for nodeIdx := range size {
		nd := t.at(safeconv.MustIntToUint32(nodeIdx))
		nd.value = frozen.values[nodeIdx]
		nd.generation = wide[0][nodeIdx]
		nd.vacant = wide[1][nodeIdx]
		nd.left = narrow[0][nodeIdx]
		nd.right = narrow[1][nodeIdx]
		nd.occupied = narrow[2][nodeIdx] > 0
	}

	return nil
}

// compressedSize returns the number of bytes held by the compressed columns.
func (frozen *frozenTree[T]) compressedSize() int {
	total := 0
	for _, col := range frozen.columns {
		total += len(col)
	}

	return total
}
