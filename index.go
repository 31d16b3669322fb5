package xvmalloc

import (
	"github.com/a1091150/xvmalloc/bitutil"
	"github.com/a1091150/xvmalloc/pageprovider"
)

// blockRef identifies a free block's position: which page it lives on
// and its byte offset within that page. The zero value is not valid;
// valid distinguishes "points at a block" from "no block" (head of an
// empty free list).
type blockRef struct {
	page   pageprovider.PageHandle
	offset uint32
	valid  bool
}

// freeListIndex is the two-level free-list index: a summary word with
// one bit per row, wordBits row words with one bit per column, and one
// list head per size class. The two-level split turns "find the
// smallest nonempty class at or above N" into two word scans instead of
// a linear walk over hundreds of classes: the summary word narrows the
// search to a single row, and the row word then narrows it to a column.
type freeListIndex struct {
	summary uint64
	rows    [wordBits]uint64
	heads   []blockRef
}

func newFreeListIndex() *freeListIndex {
	return &freeListIndex{heads: make([]blockRef, numClasses)}
}

func (idx *freeListIndex) head(row, col int) blockRef {
	return idx.heads[classIndex(row, col)]
}

func (idx *freeListIndex) setHead(row, col int, ref blockRef) {
	i := classIndex(row, col)
	idx.heads[i] = ref
	if ref.valid {
		idx.markNonEmpty(row, col)
	} else {
		idx.markEmptyIfHeadNil(row, col)
	}
}

// markNonEmpty sets the row and summary bits for (row, col): class
// (row, col) now has at least one free block.
func (idx *freeListIndex) markNonEmpty(row, col int) {
	idx.rows[row] = bitutil.SetBit(idx.rows[row], uint(col))
	idx.summary = bitutil.SetBit(idx.summary, uint(row))
}

// markEmptyIfHeadNil clears the row/summary bits for (row, col) once its
// head has gone nil, collapsing the summary bit too if the whole row is
// now empty.
func (idx *freeListIndex) markEmptyIfHeadNil(row, col int) {
	if idx.heads[classIndex(row, col)].valid {
		return
	}
	idx.rows[row] = bitutil.ClearBit(idx.rows[row], uint(col))
	if idx.rows[row] == 0 {
		idx.summary = bitutil.ClearBit(idx.summary, uint(row))
	}
}

// findFit locates the smallest size class at or above (row, col) that
// currently has a free block: search within row starting at col, then
// the next nonempty row above, then its lowest set column.
func (idx *freeListIndex) findFit(row, col int) (int, int, bool) {
	if c, ok := bitutil.FirstSetFrom(idx.rows[row], uint(col)); ok {
		return row, int(c), true
	}
	r, ok := bitutil.FirstSetFrom(idx.summary, uint(row+1))
	if !ok {
		return 0, 0, false
	}
	c, ok := bitutil.FirstSet(idx.rows[r])
	if !ok {
		// The summary bit claimed row r was nonempty; invariant broken.
		return 0, 0, false
	}
	return int(r), int(c), true
}
