// Package pageprovider implements the page acquire/release/map/unmap
// collaborator that the allocator engine treats as external
// infrastructure: a Pool never allocates raw memory itself, it only
// asks a Provider for pages and maps them before touching bytes. This
// keeps the allocation algorithm independent of where page-sized
// storage actually comes from — an in-process byte slice for tests, or
// a real mmap'd arena.
package pageprovider

import "errors"

// PageBytes is the fixed page size every Provider hands out. It is
// defined here, not in the engine package, because "what a page is" is
// this collaborator's concern.
const PageBytes = 4096

// PageHandle identifies a page a Provider has handed out. The zero value
// never denotes a live page; Providers must not return it from a
// successful AcquirePage.
type PageHandle uint32

// ErrNoPages is returned by AcquirePage when a Provider has exhausted its
// backing capacity.
var ErrNoPages = errors.New("pageprovider: no pages available")

// Provider is the external page-provider collaborator. Implementations
// need not be safe for concurrent use; the allocator above them is
// single-threaded by design.
type Provider interface {
	// AcquirePage reserves a fresh, zeroed page and returns its handle.
	AcquirePage() (PageHandle, error)

	// ReleasePage returns a page to the provider. The handle must not be
	// used again afterwards.
	ReleasePage(h PageHandle) error

	// Map returns a PageBytes-length view of the page's storage. The
	// slice aliases the provider's backing memory; writes through it are
	// visible to later Map calls for the same handle.
	Map(h PageHandle) []byte

	// Unmap releases the mapping obtained from Map. Callers pair every
	// Map with an Unmap around each access, even though in-process
	// implementations have nothing to tear down — a real mmap-backed
	// provider may want to track outstanding mappings.
	Unmap(h PageHandle)
}
