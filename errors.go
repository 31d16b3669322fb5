package xvmalloc

import "errors"

// ErrInvalidSize is returned by Alloc for a requested size of zero or
// greater than XvMaxAllocSize.
var ErrInvalidSize = errors.New("xvmalloc: invalid allocation size")

// ErrOutOfMemory is returned when the page provider cannot supply a
// fresh page, or the control-struct allocator cannot supply a Pool slot.
var ErrOutOfMemory = errors.New("xvmalloc: out of memory")
