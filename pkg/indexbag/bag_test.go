package indexbag_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/indexbag/pkg/indexbag"
)

const (
	// testRandomOps is the number of operations of randomized tests.
	testRandomOps = 20_000

	// testFillCount is the number of values inserted by fill helpers.
	testFillCount = 7
)

func fill(t *testing.T, bag *indexbag.Bag[int], count int) []indexbag.Index {
	t.Helper()

	handles := make([]indexbag.Index, 0, count)
	for value := range count {
		handles = append(handles, bag.Insert(value))
	}

	return handles
}

func TestBag_Empty(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()
	assert.Equal(t, uint64(0), bag.PoolSize())
	assert.Equal(t, uint64(0), bag.UnusedIndexes())
	assert.Equal(t, uint64(0), bag.Len())

	idx, err := indexbag.NewIndex(1, 0)
	require.NoError(t, err)

	_, found := bag.Get(idx)
	assert.False(t, found)

	_, removed := bag.Remove(idx)
	assert.False(t, removed)
	assert.Equal(t, uint64(0), bag.UnusedIndexes())
}

func TestBag_InsertGetRemove(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()

	first := bag.Insert(12)

	got, found := bag.Get(first)
	require.True(t, found)
	assert.Equal(t, 12, got)

	removed, ok := bag.Remove(first)
	require.True(t, ok)
	assert.Equal(t, 12, removed)

	_, ok = bag.Remove(first)
	assert.False(t, ok)

	_, found = bag.Get(first)
	assert.False(t, found)
}

func TestBag_StaleHandleAfterReuse(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()

	first := bag.Insert(10)
	_, ok := bag.Remove(first)
	require.True(t, ok)

	second := bag.Insert(11)

	_, found := bag.Get(first)
	assert.False(t, found)
	assert.Nil(t, bag.GetMut(first))

	got, found := bag.Get(second)
	require.True(t, found)
	assert.Equal(t, 11, got)
	assert.Equal(t, uint64(1), bag.PoolSize())
	assert.Equal(t, first.Position(), second.Position())
	assert.Equal(t, first.Generation()+1, second.Generation())
}

func TestBag_StaleRemoveRefuses(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()

	stale := bag.Insert(1)
	_, ok := bag.Remove(stale)
	require.True(t, ok)

	fresh := bag.Insert(2)

	// A stale handle must not evict the newer occupant of its position.
	_, ok = bag.Remove(stale)
	assert.False(t, ok)
	assert.Equal(t, uint64(0), bag.UnusedIndexes())

	got, found := bag.Get(fresh)
	require.True(t, found)
	assert.Equal(t, 2, got)
}

func TestBag_GrowthOrder(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()
	handles := fill(t, bag, 3)

	for i, idx := range handles {
		assert.Equal(t, uint64(i+1), idx.Position())
		assert.Equal(t, uint64(0), idx.Generation())
	}

	assert.Equal(t, uint64(3), bag.PoolSize())
}

func TestBag_ReusePrefersLeftSubtree(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()
	handles := fill(t, bag, testFillCount)

	// Position 6 is Left then Right, under position 2.
	_, ok := bag.Remove(handles[2])
	require.True(t, ok)
	_, ok = bag.Remove(handles[5])
	require.True(t, ok)
	assert.Equal(t, uint64(2), bag.UnusedIndexes())

	first := bag.Insert(100)
	assert.Equal(t, uint64(6), first.Position())
	assert.Equal(t, uint64(1), first.Generation())

	second := bag.Insert(101)
	assert.Equal(t, uint64(3), second.Position())
	assert.Equal(t, uint64(1), second.Generation())

	third := bag.Insert(102)
	assert.Equal(t, uint64(8), third.Position())
	assert.Equal(t, uint64(8), bag.PoolSize())
	assert.Equal(t, uint64(0), bag.UnusedIndexes())
}

func TestBag_RootReusedFirst(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()
	handles := fill(t, bag, testFillCount)

	_, ok := bag.Remove(handles[6])
	require.True(t, ok)
	_, ok = bag.Remove(handles[0])
	require.True(t, ok)

	idx := bag.Insert(42)
	assert.Equal(t, uint64(1), idx.Position())
	assert.Equal(t, uint64(1), bag.UnusedIndexes())
}

func TestBag_GetMut(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[[]string]()
	idx := bag.Insert([]string{"a"})

	ptr := bag.GetMut(idx)
	require.NotNil(t, ptr)

	*ptr = append(*ptr, "b")

	got, found := bag.Get(idx)
	require.True(t, found)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestBag_GetMutSurvivesGrowth(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int](indexbag.WithPageSize(16))
	idx := bag.Insert(1)
	ptr := bag.GetMut(idx)
	require.NotNil(t, ptr)

	for value := range 1000 {
		bag.Insert(value)
	}

	*ptr = 77

	got, found := bag.Get(idx)
	require.True(t, found)
	assert.Equal(t, 77, got)
}

func TestBag_Contains(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[int]()
	idx := bag.Insert(5)
	assert.True(t, bag.Contains(idx))

	bag.Remove(idx)
	assert.False(t, bag.Contains(idx))
}

func TestBag_RemoveClearsValue(t *testing.T) {
	t.Parallel()

	bag := indexbag.New[*int]()
	value := 3
	idx := bag.Insert(&value)

	removed, ok := bag.Remove(idx)
	require.True(t, ok)
	assert.Same(t, &value, removed)

	reused := bag.Insert(nil)
	got, found := bag.Get(reused)
	require.True(t, found)
	assert.Nil(t, got)
}

func TestBag_Randomized(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(0x4a94ef6a, 0x5d233890))
	bag := indexbag.New[uint32](indexbag.WithPageSize(64))

	live := map[indexbag.Index]uint32{}
	handles := []indexbag.Index{}

	var dead []indexbag.Index

	for range testRandomOps {
		poolBefore := bag.PoolSize()
		unusedBefore := bag.UnusedIndexes()

		switch op := rng.IntN(3); {
		case op == 0 || len(handles) == 0:
			value := rng.Uint32()
			idx := bag.Insert(value)

			_, clash := live[idx]
			require.False(t, clash, "handle %s issued twice", idx)

			live[idx] = value
			handles = append(handles, idx)

			if unusedBefore > 0 {
				require.Equal(t, poolBefore, bag.PoolSize(), "pool grew while %d slots were vacant", unusedBefore)
			} else {
				require.Equal(t, poolBefore+1, bag.PoolSize())
			}
		case op == 1:
			pick := rng.IntN(len(handles))
			idx := handles[pick]
			handles[pick] = handles[len(handles)-1]
			handles = handles[:len(handles)-1]

			removed, ok := bag.Remove(idx)
			require.True(t, ok)
			require.Equal(t, live[idx], removed)
			delete(live, idx)

			dead = append(dead, idx)
		default:
			idx := handles[rng.IntN(len(handles))]
			got, found := bag.Get(idx)
			require.True(t, found)
			require.Equal(t, live[idx], got)
		}

		require.GreaterOrEqual(t, bag.PoolSize(), poolBefore)
		require.Equal(t, bag.PoolSize()-uint64(len(live)), bag.UnusedIndexes())
		require.Equal(t, uint64(len(live)), bag.Len())
	}

	for _, idx := range dead {
		_, found := bag.Get(idx)
		require.False(t, found, "removed handle %s still resolves", idx)

		_, removed := bag.Remove(idx)
		require.False(t, removed)
	}
}
