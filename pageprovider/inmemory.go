package pageprovider

import "fmt"

// InMemoryProvider backs pages with a single growable Go byte slice, one
// PageBytes-sized stripe per handle. It is the default Provider for
// tests and for cmd/xvbench: no syscalls, no backing file, just
// bounds-checked slice arithmetic over a single arena.
type InMemoryProvider struct {
	arena     []byte
	freeList  []PageHandle // released handles, reused before growing arena
	nextPage  uint32
	maxPages  uint32
	liveCount uint32
}

// NewInMemoryProvider creates a provider that can hand out at most
// maxPages pages before AcquirePage starts returning ErrNoPages. A
// maxPages of 0 means unbounded (the arena grows as needed).
func NewInMemoryProvider(maxPages uint32) *InMemoryProvider {
	return &InMemoryProvider{maxPages: maxPages}
}

func (p *InMemoryProvider) AcquirePage() (PageHandle, error) {
	if n := len(p.freeList); n > 0 {
		h := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		clear(p.pageBytes(h))
		p.liveCount++
		return h, nil
	}
	if p.maxPages != 0 && p.nextPage >= p.maxPages {
		return 0, ErrNoPages
	}
	p.nextPage++
	h := PageHandle(p.nextPage) // handles start at 1; 0 is reserved "none"
	p.arena = append(p.arena, make([]byte, PageBytes)...)
	p.liveCount++
	return h, nil
}

func (p *InMemoryProvider) ReleasePage(h PageHandle) error {
	if err := p.checkHandle(h); err != nil {
		return err
	}
	p.freeList = append(p.freeList, h)
	p.liveCount--
	return nil
}

func (p *InMemoryProvider) Map(h PageHandle) []byte {
	return p.pageBytes(h)
}

func (p *InMemoryProvider) Unmap(PageHandle) {}

// LivePages reports how many pages are currently checked out, for tests
// and benchmark reporting.
func (p *InMemoryProvider) LivePages() uint32 { return p.liveCount }

func (p *InMemoryProvider) pageBytes(h PageHandle) []byte {
	off := (uint32(h) - 1) * PageBytes
	return p.arena[off : off+PageBytes]
}

func (p *InMemoryProvider) checkHandle(h PageHandle) error {
	if h == 0 || uint32(h) > p.nextPage {
		return fmt.Errorf("pageprovider: invalid page handle %d", h)
	}
	return nil
}
