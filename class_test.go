package xvmalloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassOfRoundTrip(t *testing.T) {
	sizes := []uint32{1, 7, XvMinAllocSize, XvMinAllocSize + 1, 200, FlDeltaBytes,
		FlDeltaBytes + 1, 1000, 4000, XvMaxAllocSize - 1, XvMaxAllocSize}

	for _, s := range sizes {
		row, col, err := classOf(s)
		assert.NoError(t, err, "size %d", s)
		assert.GreaterOrEqual(t, sizeOf(row, col), s, "size %d rounded down", s)
	}
}

func TestClassOfRejectsOutOfRange(t *testing.T) {
	_, _, err := classOf(0)
	assert.True(t, errors.Is(err, ErrInvalidSize))

	_, _, err = classOf(XvMaxAllocSize + 1)
	assert.True(t, errors.Is(err, ErrInvalidSize))
}

func TestClassIndexWithinWordBitsSquared(t *testing.T) {
	assert.LessOrEqual(t, numClasses, wordBits*wordBits)
	lastRow, lastCol, err := classOf(XvMaxAllocSize)
	assert.NoError(t, err)
	assert.Less(t, lastRow, wordBits)
	assert.Less(t, lastCol, wordBits)
}

func TestClassSizesStrictlyIncreasing(t *testing.T) {
	for i := 1; i < len(classSizes); i++ {
		assert.Greater(t, classSizes[i], classSizes[i-1])
	}
	assert.Equal(t, uint32(XvMaxAllocSize), classSizes[len(classSizes)-1])
}

func TestClassFloorNeverOverstatesCapacity(t *testing.T) {
	for _, payload := range []uint32{XvMinAllocSize, 100, 257, 3000, XvMaxAllocSize} {
		row, col, ok := classFloor(payload)
		assert.True(t, ok)
		assert.LessOrEqual(t, sizeOf(row, col), payload)
	}
}

func TestDenseTierIsOneByteApart(t *testing.T) {
	r1, c1, err := classOf(100)
	assert.NoError(t, err)
	r2, c2, err := classOf(101)
	assert.NoError(t, err)
	assert.NotEqual(t, [2]int{r1, c1}, [2]int{r2, c2})
	assert.Equal(t, uint32(100), sizeOf(r1, c1))
	assert.Equal(t, uint32(101), sizeOf(r2, c2))
}
