//go:build unix

package pageprovider

import (
	"fmt"
	"os"
	"syscall"
)

// MmapOptions configures a MmapProvider as a plain struct literal rather
// than a config file or env-var loader — there is nothing here that
// needs to survive a process restart or be set outside the calling code.
type MmapOptions struct {
	// Path is the backing file. If empty, an anonymous mapping is used.
	Path string
	// MaxPages bounds how many PageBytes-sized pages the arena holds.
	MaxPages uint32
}

// MmapProvider backs pages with a single mmap'd arena, anonymous or
// file-backed. syscall is used directly rather than
// golang.org/x/sys/unix since Mmap/Munmap are the only two calls needed
// and both live in the standard library already.
type MmapProvider struct {
	file     *os.File
	data     []byte
	used     *harnessBitmap
	maxPages uint32
}

// OpenMmapProvider maps opts.MaxPages*PageBytes bytes, either anonymously
// or backed by opts.Path.
func OpenMmapProvider(opts MmapOptions) (*MmapProvider, error) {
	size := int(opts.MaxPages) * PageBytes
	p := &MmapProvider{maxPages: opts.MaxPages, used: newHarnessBitmap(int(opts.MaxPages))}

	if opts.Path == "" {
		data, err := syscall.Mmap(-1, 0, size,
			syscall.PROT_READ|syscall.PROT_WRITE,
			syscall.MAP_ANON|syscall.MAP_PRIVATE)
		if err != nil {
			return nil, fmt.Errorf("mmap anonymous page arena: %w", err)
		}
		p.data = data
		return p, nil
	}

	f, err := os.OpenFile(opts.Path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open page arena file: %w", err)
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate page arena file: %w", err)
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, size,
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap page arena file: %w", err)
	}
	p.file = f
	p.data = data
	return p, nil
}

func (p *MmapProvider) AcquirePage() (PageHandle, error) {
	slot, ok := p.used.findUnused()
	if !ok {
		return 0, ErrNoPages
	}
	p.used.markUsed(slot)
	h := PageHandle(slot + 1)
	clear(p.pageBytes(h))
	return h, nil
}

func (p *MmapProvider) ReleasePage(h PageHandle) error {
	if h == 0 || uint32(h) > p.maxPages {
		return fmt.Errorf("pageprovider: invalid page handle %d", h)
	}
	p.used.markUnused(int(h) - 1)
	return nil
}

func (p *MmapProvider) Map(h PageHandle) []byte { return p.pageBytes(h) }

func (p *MmapProvider) Unmap(PageHandle) {}

// Close unmaps the arena and closes the backing file, if any.
func (p *MmapProvider) Close() error {
	if err := syscall.Munmap(p.data); err != nil {
		return fmt.Errorf("munmap page arena: %w", err)
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

func (p *MmapProvider) pageBytes(h PageHandle) []byte {
	off := (uint32(h) - 1) * PageBytes
	return p.data[off : off+PageBytes]
}
