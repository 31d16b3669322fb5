package xvmalloc

import (
	"sort"

	"github.com/a1091150/xvmalloc/bitutil"
	"github.com/a1091150/xvmalloc/pageprovider"
)

// Size constants. PageBytes and the block header size fix
// XvMaxAllocSize at a full page minus one header; XvMinAllocSize is
// fixed by the free-block link record's size, since every free block
// must have room for one while it sits on a doubly-linked free list.
const (
	PageBytes = pageprovider.PageBytes

	blockHeaderSize = 8  // thisSize uint16 + prevSize uint16 + flags byte + 3 reserved
	linkRecordSize  = 16 // prevPage/prevOffset/nextPage/nextOffset, uint32 each

	// firstBlockOffset is where the first block of a page begins. Per-page
	// bookkeeping (in-use count) is kept Go-side in pageMeta (pool.go)
	// rather than serialized into the page bytes themselves, so blocks
	// tile the page starting at byte 0 with no reserved header region.
	firstBlockOffset = 0

	// XvMinAllocSize is the smallest payload size any block carries;
	// smaller requests are rounded up to it. It must be large enough to
	// hold a link record while the block sits on a free list.
	XvMinAllocSize = linkRecordSize

	// XvMaxAllocSize is the largest payload size a single block can
	// hold: a full page minus its block header.
	XvMaxAllocSize = PageBytes - blockHeaderSize

	// FlDeltaBytes is the boundary below which size classes are spaced
	// one byte apart, trading a larger class table for zero internal
	// fragmentation on the small allocations that dominate most workloads.
	FlDeltaBytes = 256

	// minBlockTotalSize is the smallest total (header+payload) size a
	// standalone block can have, used by split/coalesce arithmetic.
	minBlockTotalSize = blockHeaderSize + XvMinAllocSize
)

// wordBits is the two-level index's row/column width: one summary word
// with one bit per row, and one row word per wordBits columns.
const wordBits = bitutil.WordBits

// classSizes holds, at index i, the exact payload size of size-class i.
// It is strictly increasing, so classOf (a ceiling search) and sizeOf
// (indexing) are exact inverses wherever sizeOf's input round-trips
// through classOf. Built once at init time; see buildClassSizes.
var classSizes = buildClassSizes()

// numClasses is classSizes' length. It is well under wordBits*wordBits
// (4096): a dense tier of one-byte-apart classes from XvMinAllocSize to
// FlDeltaBytes, then doubling-octave tiers of 8 sub-classes each up to
// XvMaxAllocSize.
var numClasses = len(classSizes)

func buildClassSizes() []uint32 {
	sizes := make([]uint32, 0, FlDeltaBytes-XvMinAllocSize+1+64)

	for s := uint32(XvMinAllocSize); s <= FlDeltaBytes; s++ {
		sizes = append(sizes, s)
	}

	const subclassesPerOctave = 8
	lower := uint32(FlDeltaBytes)
	for lower < XvMaxAllocSize {
		upper := lower * 2
		if upper > XvMaxAllocSize {
			upper = XvMaxAllocSize
		}
		step := (upper - lower) / subclassesPerOctave
		if step == 0 {
			if upper > sizes[len(sizes)-1] {
				sizes = append(sizes, upper)
			}
			break
		}
		for k := uint32(1); k <= subclassesPerOctave; k++ {
			sz := lower + step*k
			if sz > XvMaxAllocSize {
				sz = XvMaxAllocSize
			}
			if sz > sizes[len(sizes)-1] {
				sizes = append(sizes, sz)
			}
		}
		lower = upper
	}

	if sizes[len(sizes)-1] != XvMaxAllocSize {
		sizes = append(sizes, XvMaxAllocSize)
	}
	return sizes
}

// classOf maps a requested payload size to the smallest size class whose
// capacity is at least size, so sizeOf(classOf(s)) is always >= s.
// It returns ErrInvalidSize for size 0 or size > XvMaxAllocSize.
func classOf(size uint32) (row, col int, err error) {
	if size == 0 || size > XvMaxAllocSize {
		return 0, 0, ErrInvalidSize
	}
	idx := sort.Search(numClasses, func(i int) bool { return classSizes[i] >= size })
	// idx < numClasses always holds here: classSizes' last entry equals
	// XvMaxAllocSize, and size <= XvMaxAllocSize was just checked.
	return idx / wordBits, idx % wordBits, nil
}

// classFloor maps an already-known block payload capacity to the largest
// size class whose capacity does not exceed it. This is the function
// used to index a free block we already own by its actual size:
// classOf's ceiling rounding is only correct for translating a caller's
// requested size into a search start, never for registering a free
// block's real capacity (which would let findFit hand out a block
// smaller than the class it's filed under promises). ok is false only
// if payload is below XvMinAllocSize, which never happens for a block
// built by split or coalesce.
func classFloor(payload uint32) (row, col int, ok bool) {
	if payload < XvMinAllocSize {
		return 0, 0, false
	}
	if payload > XvMaxAllocSize {
		payload = XvMaxAllocSize
	}
	idx := sort.Search(numClasses, func(i int) bool { return classSizes[i] > payload }) - 1
	if idx < 0 {
		return 0, 0, false
	}
	return idx / wordBits, idx % wordBits, true
}

// sizeOf returns the exact payload capacity of size class (row, col).
// Passing coordinates classOf never produced is a programmer error.
func sizeOf(row, col int) uint32 {
	return classSizes[classIndex(row, col)]
}

func classIndex(row, col int) int { return row*wordBits + col }
