package xvmalloc

import (
	"encoding/binary"

	"github.com/a1091150/xvmalloc/pageprovider"
)

// Block header and free-block link record layout. The per-page header
// lives Go-side in pageMeta (pool.go). Every accessor here takes a mapped page
// view (as returned by pageprovider.Provider.Map) and a byte offset into
// it; nothing here touches the provider directly, keeping the map/unmap
// discipline entirely in pool.go.
//
// Fields are raw little-endian encoded with encoding/binary rather than
// overlaid with a struct, since the same bytes are read back after a
// split or coalesce may have changed their meaning underneath a stale
// pointer.

const (
	flagThisFree = 1 << 0
	flagPrevFree = 1 << 1
)

// --- block header ---

func blockThisSize(page []byte, off uint32) uint32 {
	return uint32(binary.LittleEndian.Uint16(page[off : off+2]))
}

func setBlockThisSize(page []byte, off uint32, v uint32) {
	binary.LittleEndian.PutUint16(page[off:off+2], uint16(v))
}

func blockPrevSize(page []byte, off uint32) uint32 {
	return uint32(binary.LittleEndian.Uint16(page[off+2 : off+4]))
}

func setBlockPrevSize(page []byte, off uint32, v uint32) {
	binary.LittleEndian.PutUint16(page[off+2:off+4], uint16(v))
}

func blockFlags(page []byte, off uint32) byte { return page[off+4] }

func setBlockFlags(page []byte, off uint32, v byte) { page[off+4] = v }

func blockThisFree(page []byte, off uint32) bool {
	return blockFlags(page, off)&flagThisFree != 0
}

func setBlockThisFree(page []byte, off uint32, free bool) {
	f := blockFlags(page, off)
	if free {
		f |= flagThisFree
	} else {
		f &^= flagThisFree
	}
	setBlockFlags(page, off, f)
}

func blockPrevFree(page []byte, off uint32) bool {
	return blockFlags(page, off)&flagPrevFree != 0
}

func setBlockPrevFree(page []byte, off uint32, free bool) {
	f := blockFlags(page, off)
	if free {
		f |= flagPrevFree
	} else {
		f &^= flagPrevFree
	}
	setBlockFlags(page, off, f)
}

// --- free-block link record, stored in the payload immediately after
// the header; only meaningful while the block is free ---

func linkOffset(off uint32) uint32 { return off + blockHeaderSize }

func setBlockPrevLink(page []byte, off uint32, h pageprovider.PageHandle, linkOff uint32) {
	base := linkOffset(off)
	binary.LittleEndian.PutUint32(page[base:base+4], uint32(h))
	binary.LittleEndian.PutUint32(page[base+4:base+8], linkOff)
}

func setBlockNextLink(page []byte, off uint32, h pageprovider.PageHandle, linkOff uint32) {
	base := linkOffset(off) + 8
	binary.LittleEndian.PutUint32(page[base:base+4], uint32(h))
	binary.LittleEndian.PutUint32(page[base+4:base+8], linkOff)
}

func blockPrevLink(page []byte, off uint32) (pageprovider.PageHandle, uint32, bool) {
	base := linkOffset(off)
	h := pageprovider.PageHandle(binary.LittleEndian.Uint32(page[base : base+4]))
	o := binary.LittleEndian.Uint32(page[base+4 : base+8])
	return h, o, h != 0
}

func blockNextLink(page []byte, off uint32) (pageprovider.PageHandle, uint32, bool) {
	base := linkOffset(off) + 8
	h := pageprovider.PageHandle(binary.LittleEndian.Uint32(page[base : base+4]))
	o := binary.LittleEndian.Uint32(page[base+4 : base+8])
	return h, o, h != 0
}

func clearBlockLinks(page []byte, off uint32) {
	setBlockPrevLink(page, off, 0, 0)
	setBlockNextLink(page, off, 0, 0)
}
