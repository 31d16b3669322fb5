package xvmalloc

import (
	"testing"

	"github.com/a1091150/xvmalloc/pageprovider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, maxPages uint32) *Pool {
	t.Helper()
	provider := pageprovider.NewInMemoryProvider(maxPages)
	pool, err := CreatePool(provider)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Destroy() })
	return pool
}

// TestAllocFreeSingleBlock allocates one block near XvMaxAllocSize, then
// frees it.
func TestAllocFreeSingleBlock(t *testing.T) {
	pool := newTestPool(t, 4)

	page, off, err := pool.Alloc(XvMaxAllocSize - 4)
	require.NoError(t, err)
	require.NoError(t, pool.Free(page, off))
}

func TestAllocRejectsInvalidSizes(t *testing.T) {
	pool := newTestPool(t, 1)

	_, _, err := pool.Alloc(0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, _, err = pool.Alloc(XvMaxAllocSize + 1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestAllocGrowsPoolWhenFreeListEmpty(t *testing.T) {
	pool := newTestPool(t, 4)
	assert.Equal(t, 0, pool.TotalPages())

	_, _, err := pool.Alloc(64)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.TotalPages())
}

func TestAllocOutOfMemoryWhenProviderExhausted(t *testing.T) {
	pool := newTestPool(t, 1)

	// Fill the single page with maximum-size allocations until exhausted.
	var lastErr error
	for i := 0; i < 1000; i++ {
		_, _, err := pool.Alloc(XvMaxAllocSize)
		if err != nil {
			lastErr = err
			break
		}
	}
	require.Error(t, lastErr)
	assert.ErrorIs(t, lastErr, ErrOutOfMemory)
}

// TestSplitAndCoalesceRestoresSinglePage allocates two small blocks out of
// one page (forcing a split), frees them both, and checks the page's sole
// block is reclaimed (the page itself released back to the provider).
func TestSplitAndCoalesceRestoresSinglePage(t *testing.T) {
	provider := pageprovider.NewInMemoryProvider(4)
	pool, err := CreatePool(provider)
	require.NoError(t, err)

	pageA, offA, err := pool.Alloc(64)
	require.NoError(t, err)
	pageB, offB, err := pool.Alloc(64)
	require.NoError(t, err)
	assert.Equal(t, pageA, pageB, "two small allocs should share one page")
	assert.Equal(t, 1, pool.TotalPages())
	assert.Equal(t, uint32(1), provider.LivePages())

	require.NoError(t, pool.Free(pageA, offA))
	require.NoError(t, pool.Free(pageB, offB))

	assert.Equal(t, 0, pool.TotalPages())
	assert.Equal(t, uint32(0), provider.LivePages())
}

// TestFreeCoalescesAdjacentNeighbors checks that freeing three adjacent
// blocks in prev/next order merges them back into one block capable of
// servicing a request as large as all three combined.
func TestFreeCoalescesAdjacentNeighbors(t *testing.T) {
	pool := newTestPool(t, 4)

	p1, o1, err := pool.Alloc(500)
	require.NoError(t, err)
	p2, o2, err := pool.Alloc(500)
	require.NoError(t, err)
	p3, o3, err := pool.Alloc(500)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, p2, p3)

	require.NoError(t, pool.Free(p1, o1))
	require.NoError(t, pool.Free(p3, o3))
	require.NoError(t, pool.Free(p2, o2))

	// Coalescing all three plus the page's leftover space merges the
	// whole page back into one free block with no live allocations, so
	// the page itself is released back to the provider.
	assert.Equal(t, 0, pool.TotalPages())

	// A single fresh page must be enough to service a near-max
	// allocation: exactly one page gets re-acquired.
	_, _, err = pool.Alloc(XvMaxAllocSize - 100)
	require.NoError(t, err)
	assert.Equal(t, 1, pool.TotalPages())
}

func TestFreeUnknownPageFails(t *testing.T) {
	pool := newTestPool(t, 1)
	err := pool.Free(pageprovider.PageHandle(999), 0)
	assert.Error(t, err)
}

// TestMixedLoad exercises many interleaved allocations and frees across a
// spread of size classes, checking no operation errors and the pool
// returns to zero pages once everything is freed.
func TestMixedLoad(t *testing.T) {
	pool := newTestPool(t, 64)

	type live struct {
		page pageprovider.PageHandle
		off  uint32
	}
	var blocks []live
	sizes := []uint32{16, 32, 64, 128, 256, 300, 600, 1200, 2500}

	for round := 0; round < 200; round++ {
		sz := sizes[round%len(sizes)]
		page, off, err := pool.Alloc(sz)
		require.NoError(t, err)
		blocks = append(blocks, live{page, off})

		if len(blocks) > 10 {
			victim := blocks[0]
			blocks = blocks[1:]
			require.NoError(t, pool.Free(victim.page, victim.off))
		}
	}

	for _, b := range blocks {
		require.NoError(t, pool.Free(b.page, b.off))
	}

	assert.Equal(t, 0, pool.TotalPages())
}
