package pageprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHarnessBitmapFindUnusedPrefersLowestIndex(t *testing.T) {
	b := newHarnessBitmap(130)

	b.markUsed(0)
	b.markUsed(1)
	idx, ok := b.findUnused()
	assert.True(t, ok)
	assert.Equal(t, 2, idx)
}

func TestHarnessBitmapExhaustion(t *testing.T) {
	b := newHarnessBitmap(3)
	b.markUsed(0)
	b.markUsed(1)
	b.markUsed(2)

	_, ok := b.findUnused()
	assert.False(t, ok, "findUnused reported a free slot past capacity")
}

func TestHarnessBitmapMarkUnusedFreesSlot(t *testing.T) {
	b := newHarnessBitmap(65)
	for i := 0; i < 65; i++ {
		b.markUsed(i)
	}
	b.markUnused(64)

	idx, ok := b.findUnused()
	assert.True(t, ok)
	assert.Equal(t, 64, idx)
}
