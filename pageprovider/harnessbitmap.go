package pageprovider

import "math/bits"

// harnessBitmap tracks, for a fixed-capacity arena, which page slots are
// checked out, so MmapProvider can answer "which page is free" without a
// linear scan.
//
// Bit positions are counted most-significant-bit-first within each word
// (via bits.LeadingZeros64), deliberately not shared with bitutil's
// LSB-first convention: using one formula for both marking a slot used
// and marking it unused guarantees the two operations agree on which bit
// a given index maps to, which a pair of independently hand-rolled
// set/clear routines can't be trusted to do without careful review.
type harnessBitmap struct {
	words []uint64
	bits  int
}

func newHarnessBitmap(capacity int) *harnessBitmap {
	return &harnessBitmap{words: make([]uint64, (capacity+63)/64), bits: capacity}
}

// msbMask returns the word with only bit i (counted MSB-first within the
// word, i.e. bit 0 is the top bit) set.
func msbMask(i uint) uint64 {
	return (uint64(1) << 63) >> i
}

func (b *harnessBitmap) markUsed(i int) {
	w, bit := i/64, uint(i%64)
	b.words[w] |= msbMask(bit)
}

func (b *harnessBitmap) markUnused(i int) {
	w, bit := i/64, uint(i%64)
	b.words[w] &^= msbMask(bit)
}

// findUnused returns the index of the lowest-indexed unused slot, or
// (-1, false) if every tracked slot is in use.
func (b *harnessBitmap) findUnused() (int, bool) {
	for w, word := range b.words {
		if word == ^uint64(0) {
			continue
		}
		bit := bits.LeadingZeros64(^word)
		idx := w*64 + bit
		if idx >= b.bits {
			return 0, false
		}
		return idx, true
	}
	return 0, false
}
