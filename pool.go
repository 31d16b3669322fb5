package xvmalloc

import (
	"fmt"

	"github.com/a1091150/xvmalloc/ctrlalloc"
	"github.com/a1091150/xvmalloc/pageprovider"
)

// poolAllocator hands out the Pool control structs themselves. Capped at
// ctrlalloc's maximum slot count; a single process running this many
// independent pools concurrently is not a scenario worth sizing for.
var poolAllocator = ctrlalloc.New[Pool](0)

// pageMeta is the Go-side page header: how many blocks on this page are
// currently allocated. This bookkeeping is not serialized into the page
// bytes (see class.go's firstBlockOffset comment) since nothing outside
// this process ever reads a page's raw bytes directly.
type pageMeta struct {
	inUse uint32
}

// Pool is a single allocation arena: a page provider, the two-level
// free-list index threading free blocks across every page the pool
// owns, and per-page bookkeeping. Alloc always tries the free-list
// index first and only falls back to acquiring a fresh page from the
// provider when no existing page can satisfy the request.
type Pool struct {
	provider pageprovider.Provider
	index    *freeListIndex
	pages    map[pageprovider.PageHandle]*pageMeta
}

// CreatePool allocates a new Pool control struct from the control-struct
// allocator and wires it to provider. Returns ErrOutOfMemory if the
// control-struct allocator has no slots left.
func CreatePool(provider pageprovider.Provider) (*Pool, error) {
	p, err := poolAllocator.Acquire()
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", ErrOutOfMemory)
	}
	p.provider = provider
	p.index = newFreeListIndex()
	p.pages = make(map[pageprovider.PageHandle]*pageMeta)
	return p, nil
}

// Destroy releases every page the pool owns back to its provider and
// returns the Pool's own control struct to the control-struct allocator.
// The Pool must not be used afterwards.
func (p *Pool) Destroy() error {
	for h := range p.pages {
		if err := p.provider.ReleasePage(h); err != nil {
			return fmt.Errorf("destroy pool: release page: %w", err)
		}
	}
	p.pages = nil
	p.index = nil
	poolAllocator.Release(p)
	return nil
}

// TotalPages reports how many pages the pool currently owns.
func (p *Pool) TotalPages() int { return len(p.pages) }

// Alloc reserves a block of at least size bytes and returns its
// location as a (page handle, offset) pair. It fails with
// ErrInvalidSize for size 0 or size > XvMaxAllocSize, and with
// ErrOutOfMemory if the page provider cannot supply a fresh page.
func (p *Pool) Alloc(size uint32) (pageprovider.PageHandle, uint32, error) {
	row, col, err := classOf(size)
	if err != nil {
		return 0, 0, err
	}

	page, off, ok := p.takeFit(row, col)
	if !ok {
		if err := p.growByOnePage(); err != nil {
			return 0, 0, err
		}
		page, off, ok = p.takeFit(row, col)
		if !ok {
			// growByOnePage added a block sized for XvMaxAllocSize, which
			// is always >= sizeOf(row, col); failing here means the
			// index/page bookkeeping is inconsistent, not that memory
			// ran out.
			return 0, 0, fmt.Errorf("xvmalloc: internal error: no fit after growing pool")
		}
	}

	view := p.provider.Map(page)
	p.splitIfWorthwhile(view, page, off, row, col)
	setBlockThisFree(view, off, false)

	// The immediate successor (off's tail after any split, or off's own
	// original successor if no split happened) must stop believing its
	// predecessor is free now that off is allocated. When a split did
	// happen the tail's prevFree was already cleared in
	// splitIfWorthwhile; this line is then a harmless no-op repeat.
	if nextOff := off + blockThisSize(view, off); nextOff < uint32(PageBytes) {
		setBlockPrevFree(view, nextOff, false)
	}

	p.pages[page].inUse++
	p.provider.Unmap(page)

	return page, off + blockHeaderSize, nil
}

// Free returns a previously allocated block to the pool, coalescing it
// with an adjacent free neighbor on the same page when possible.
// offset must be the payload offset returned by Alloc.
func (p *Pool) Free(page pageprovider.PageHandle, offset uint32) error {
	meta, ok := p.pages[page]
	if !ok {
		return fmt.Errorf("xvmalloc: free: unknown page handle %d", page)
	}
	off := offset - blockHeaderSize

	view := p.provider.Map(page)
	size := blockThisSize(view, off)

	// Absorb a free predecessor: its size is already recorded in this
	// block's prevSize field, so no extra read is needed to locate it.
	if blockPrevFree(view, off) {
		prevSize := blockPrevSize(view, off)
		prevOff := off - prevSize
		prow, pcol, _ := classFloor(prevSize - blockHeaderSize)
		p.unlinkFree(prow, pcol, page, prevOff)
		off = prevOff
		size += prevSize
	}

	// Absorb a free successor.
	nextOff := off + size
	if nextOff < uint32(PageBytes) && blockThisFree(view, nextOff) {
		nextSize := blockThisSize(view, nextOff)
		nrow, ncol, _ := classFloor(nextSize - blockHeaderSize)
		p.unlinkFree(nrow, ncol, page, nextOff)
		size += nextSize
	}

	setBlockThisSize(view, off, size)
	p.markFreeAndLink(page, off, size)

	newNextOff := off + size
	if newNextOff < uint32(PageBytes) {
		setBlockPrevFree(view, newNextOff, true)
		setBlockPrevSize(view, newNextOff, size)
	}

	p.provider.Unmap(page)
	meta.inUse--
	if meta.inUse == 0 {
		p.reclaimEmptyPage(page)
	}
	return nil
}

// takeFit finds the smallest nonempty class at or above (row, col),
// unlinks its head block, and returns its location.
func (p *Pool) takeFit(row, col int) (pageprovider.PageHandle, uint32, bool) {
	r, c, ok := p.index.findFit(row, col)
	if !ok {
		return 0, 0, false
	}
	head := p.index.head(r, c)
	p.unlinkFree(r, c, head.page, head.offset)
	return head.page, head.offset, true
}

// splitIfWorthwhile carves the tail off a found block when the leftover
// is large enough to stand alone as a free block.
func (p *Pool) splitIfWorthwhile(view []byte, page pageprovider.PageHandle, off uint32, row, col int) {
	have := blockThisSize(view, off)
	need := sizeOf(row, col) + blockHeaderSize
	remainder := have - need
	if remainder < minBlockTotalSize {
		return
	}

	setBlockThisSize(view, off, need)
	tailOff := off + need
	setBlockThisSize(view, tailOff, remainder)
	setBlockPrevFree(view, tailOff, false) // off's block is about to be marked allocated
	setBlockPrevSize(view, tailOff, need)

	nextOff := tailOff + remainder
	if nextOff < uint32(PageBytes) {
		setBlockPrevFree(view, nextOff, true)
		setBlockPrevSize(view, nextOff, remainder)
	}

	p.markFreeAndLink(page, tailOff, remainder)
}

// markFreeAndLink marks the block at off as free and pushes it onto the
// head of its size class's free list.
func (p *Pool) markFreeAndLink(page pageprovider.PageHandle, off, totalSize uint32) {
	row, col, ok := classFloor(totalSize - blockHeaderSize)
	if !ok {
		// totalSize came from splitting/coalescing blocks that were
		// themselves valid classes; this would mean a size-arithmetic
		// bug, not user error.
		panic(fmt.Sprintf("xvmalloc: invalid free block size %d", totalSize))
	}
	p.linkFree(row, col, page, off)
}

// linkFree pushes (page, off) onto the front of size class (row, col)'s
// free list.
func (p *Pool) linkFree(row, col int, page pageprovider.PageHandle, off uint32) {
	view := p.provider.Map(page)
	head := p.index.head(row, col)
	setBlockThisFree(view, off, true)
	setBlockPrevLink(view, off, 0, 0)
	if head.valid {
		setBlockNextLink(view, off, head.page, head.offset)
		headView := view
		if head.page != page {
			headView = p.provider.Map(head.page)
		}
		setBlockPrevLink(headView, head.offset, page, off)
		if head.page != page {
			p.provider.Unmap(head.page)
		}
	} else {
		setBlockNextLink(view, off, 0, 0)
	}
	p.provider.Unmap(page)
	p.index.setHead(row, col, blockRef{page: page, offset: off, valid: true})
}

// unlinkFree removes (page, off) from size class (row, col)'s free list,
// wherever in the list it currently sits.
func (p *Pool) unlinkFree(row, col int, page pageprovider.PageHandle, off uint32) {
	view := p.provider.Map(page)
	prevPage, prevOff, hasPrev := blockPrevLink(view, off)
	nextPage, nextOff, hasNext := blockNextLink(view, off)
	p.provider.Unmap(page)

	if hasPrev {
		pv := p.provider.Map(prevPage)
		setBlockNextLink(pv, prevOff, nextPage, nextOff)
		p.provider.Unmap(prevPage)
	}
	if hasNext {
		nv := p.provider.Map(nextPage)
		setBlockPrevLink(nv, nextOff, prevPage, prevOff)
		p.provider.Unmap(nextPage)
	}

	head := p.index.head(row, col)
	if head.valid && head.page == page && head.offset == off {
		if hasNext {
			p.index.setHead(row, col, blockRef{page: nextPage, offset: nextOff, valid: true})
		} else {
			p.index.setHead(row, col, blockRef{})
		}
	}
}

// growByOnePage acquires a fresh page from the provider and installs it
// as a single free block spanning the whole page.
func (p *Pool) growByOnePage() error {
	page, err := p.provider.AcquirePage()
	if err != nil {
		return fmt.Errorf("xvmalloc: alloc: %w", ErrOutOfMemory)
	}
	p.pages[page] = &pageMeta{}

	view := p.provider.Map(page)
	total := uint32(PageBytes) - firstBlockOffset
	setBlockThisSize(view, firstBlockOffset, total)
	setBlockPrevFree(view, firstBlockOffset, false)
	p.markFreeAndLink(page, firstBlockOffset, total)
	p.provider.Unmap(page)
	return nil
}

// reclaimEmptyPage releases a page back to the provider once every block
// on it has been coalesced back into a single free block with no live
// allocations. The lone free block is first unlinked from its class.
func (p *Pool) reclaimEmptyPage(page pageprovider.PageHandle) {
	view := p.provider.Map(page)
	size := blockThisSize(view, firstBlockOffset)
	row, col, ok := classFloor(size - blockHeaderSize)
	p.provider.Unmap(page)
	if ok {
		p.unlinkFree(row, col, page, firstBlockOffset)
	}
	delete(p.pages, page)
	p.provider.ReleasePage(page)
}
