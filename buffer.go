package secmem

import (
	"crypto/rand"
	"crypto/subtle"
	"unsafe"
)

// Buffer is a fixed-length typed array backed by an allocator-supplied
// chunk. Its length is fixed at construction; there is no growable
// variant, and T must be trivially copyable — no element destructors run,
// because none can: Buffer only ever deals in raw bytes underneath.
type Buffer[T any] struct {
	alloc    Allocator
	base     uintptr
	n        int
	elemSize uintptr
	align    int
	closed   bool
}

func elemSizeOf[T any]() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

func elemAlignOf[T any]() uintptr {
	var zero T
	return unsafe.Alignof(zero)
}

// NewBuffer allocates a zero-filled buffer of n elements from the default
// allocator.
func NewBuffer[T any](n int) (*Buffer[T], error) {
	return NewBufferWithAllocator[T](DefaultAllocator(), n)
}

// NewBufferWithAllocator allocates a zero-filled buffer of n elements from
// alloc, for callers who want a private, non-default allocator.
func NewBufferWithAllocator[T any](alloc Allocator, n int) (*Buffer[T], error) {
	if n < 0 {
		Abort(&UsageError{Reason: "negative buffer length"})
	}
	es := elemSizeOf[T]()
	align := int(elemAlignOf[T]())
	if align == 0 {
		align = 1
	}
	size := int(es) * n
	if size == 0 {
		size = 1 // still take a real (tiny) allocation so Close/wipe have something to act on
	}
	addr, err := alloc.Allocate(size, align)
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{alloc: alloc, base: addr, n: n, elemSize: es, align: align}, nil
}

// NewBufferFrom allocates a buffer of len(data) elements and copies data in.
func NewBufferFrom[T any](data []T) (*Buffer[T], error) {
	return NewBufferFromWithAllocator[T](DefaultAllocator(), data)
}

// NewBufferFromWithAllocator is NewBufferFrom against a caller-supplied
// allocator.
func NewBufferFromWithAllocator[T any](alloc Allocator, data []T) (*Buffer[T], error) {
	b, err := NewBufferWithAllocator[T](alloc, len(data))
	if err != nil {
		return nil, err
	}
	copy(b.Slice(), data)
	return b, nil
}

// NewBufferRandom allocates a buffer of n elements filled with
// OS-supplied randomness. This is a peripheral convenience, not a core
// guarantee: the contract is only that the bytes come from crypto/rand,
// nothing about T's interpretation of them.
func NewBufferRandom[T any](n int) (*Buffer[T], error) {
	b, err := NewBuffer[T](n)
	if err != nil {
		return nil, err
	}
	if _, err := rand.Read(b.Bytes()); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// Len returns the element count.
func (b *Buffer[T]) Len() int { return b.n }

// Bytes returns the buffer's backing storage as a byte slice, regardless
// of T. Used internally for random fill and equality; exported because
// protocol code (MACs, tags) frequently wants the raw view.
func (b *Buffer[T]) Bytes() []byte {
	if b.closed {
		Abort(&UsageError{Reason: "use of buffer after Close"})
	}
	total := int(b.elemSize) * b.n
	if total == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(b.base)), total)
}

// Slice returns the buffer's contents as a []T sharing the backing
// storage — writes through the slice are writes to the buffer.
func (b *Buffer[T]) Slice() []T {
	if b.closed {
		Abort(&UsageError{Reason: "use of buffer after Close"})
	}
	if b.n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(b.base)), b.n)
}

// At returns element i. Out-of-bounds access is a programming error and
// aborts, not a recoverable error.
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.n {
		Abort(&UsageError{Reason: "buffer index out of bounds"})
	}
	return b.Slice()[i]
}

// Set writes element i.
func (b *Buffer[T]) Set(i int, v T) {
	if i < 0 || i >= b.n {
		Abort(&UsageError{Reason: "buffer index out of bounds"})
	}
	b.Slice()[i] = v
}

// Equal is a length-and-content compare in time constant with respect to
// the shared prefix length: it never exits early on the first mismatch, so
// it is safe to use for comparing tags or MACs.
func (b *Buffer[T]) Equal(other *Buffer[T]) bool {
	if b.n != other.n {
		return false
	}
	if b.n == 0 {
		return true
	}
	return subtle.ConstantTimeCompare(b.Bytes(), other.Bytes()) == 1
}

// Close deallocates the buffer, wiping its contents. Safe to call once;
// calling it again is a UsageError (double-free).
func (b *Buffer[T]) Close() error {
	if b.closed {
		Abort(&UsageError{Reason: "double free of buffer"})
	}
	b.closed = true
	size := int(b.elemSize) * b.n
	if size == 0 {
		size = 1
	}
	return b.alloc.Deallocate(b.base, size, b.align)
}
