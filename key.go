package secmem

import (
	"crypto/rand"
	"unsafe"
)

// Key wraps a Buffer[T] whose backing allocator is a KeyAllocator: the
// memory is unmapped (NoAccess) except during a bounded ReadWith/WriteWith
// call, which is the only way to observe its contents.
//
// Key carries no internal locking. The baseline scheduling model is
// single-threaded cooperative: one goroutine drives a Key's
// ReadWith/WriteWith calls at a time. A Key must not be shared across
// goroutines in the baseline, because its protection transitions would
// race; wrap it behind a mutex if it must be.
type Key[T any] struct {
	keyAlloc KeyAllocator
	addr     uintptr
	size     int
	n        int
	align    int

	leases  int
	writing bool
	closed  bool
}

// Seal consumes a Buffer[T] allocated from a KeyAllocator, transitions its
// pages to NoAccess, and returns a Key in the Sealed state. The buffer must
// not be used (or Closed) after this call — Key now owns its lifecycle.
func Seal[T any](buf *Buffer[T]) (*Key[T], error) {
	ka, ok := buf.alloc.(KeyAllocator)
	if !ok {
		Abort(&UsageError{Reason: "Seal requires a buffer allocated from a KeyAllocator"})
	}
	if buf.closed {
		Abort(&UsageError{Reason: "Seal of an already-closed buffer"})
	}
	if err := ka.Revoke(buf.base); err != nil {
		return nil, err
	}
	k := &Key[T]{
		keyAlloc: ka,
		addr:     buf.base,
		size:     int(buf.elemSize) * buf.n,
		n:        buf.n,
		align:    buf.align,
	}
	buf.closed = true
	return k, nil
}

// NewKey allocates and seals a zero-filled key of n elements from the
// default key allocator.
func NewKey[T any](n int) (*Key[T], error) {
	return NewKeyWithAllocator[T](DefaultKeyAllocator(), n)
}

// NewKeyWithAllocator is NewKey against a caller-supplied key allocator.
func NewKeyWithAllocator[T any](keyAlloc KeyAllocator, n int) (*Key[T], error) {
	buf, err := NewBufferWithAllocator[T](keyAlloc, n)
	if err != nil {
		return nil, err
	}
	return Seal(buf)
}

// NewKeyFrom allocates and seals a key of len(data) elements, copying data
// in before sealing. Callers are responsible for wiping data themselves —
// the core cannot scrub a caller-owned slice.
func NewKeyFrom[T any](data []T) (*Key[T], error) {
	return NewKeyFromWithAllocator[T](DefaultKeyAllocator(), data)
}

// NewKeyFromWithAllocator is NewKeyFrom against a caller-supplied key
// allocator.
func NewKeyFromWithAllocator[T any](keyAlloc KeyAllocator, data []T) (*Key[T], error) {
	buf, err := NewBufferWithAllocator[T](keyAlloc, len(data))
	if err != nil {
		return nil, err
	}
	// Key pages are born NoAccess; open them for the copy, Seal revokes.
	if err := keyAlloc.GrantWrite(buf.base); err != nil {
		_ = buf.Close()
		return nil, err
	}
	copy(buf.Slice(), data)
	return Seal(buf)
}

// NewKeyRandom allocates and seals a key of n elements filled with
// OS-supplied randomness.
func NewKeyRandom[T any](n int) (*Key[T], error) {
	return NewKeyRandomWithAllocator[T](DefaultKeyAllocator(), n)
}

// NewKeyRandomWithAllocator is NewKeyRandom against a caller-supplied key
// allocator, for callers who don't want to share the process-wide pool.
func NewKeyRandomWithAllocator[T any](keyAlloc KeyAllocator, n int) (*Key[T], error) {
	buf, err := NewBufferWithAllocator[T](keyAlloc, n)
	if err != nil {
		return nil, err
	}
	if err := keyAlloc.GrantWrite(buf.base); err != nil {
		_ = buf.Close()
		return nil, err
	}
	if _, err := rand.Read(buf.Bytes()); err != nil {
		_ = buf.Close()
		return nil, err
	}
	return Seal(buf)
}

// Len returns the element count.
func (k *Key[T]) Len() int { return k.n }

func (k *Key[T]) typedView() []T {
	b := k.keyAlloc.View(k.addr, k.size)
	if k.n == 0 || len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), k.n)
}

// ReadWith grants ReadOnly access, invokes f with a read-only-intent view,
// then revokes back to NoAccess on every exit path — including a
// panicking f. ReadWith is re-entrantly composable with other ReadWith
// calls on the same key (shared lease); it is rejected while a WriteWith
// lease is active.
func (k *Key[T]) ReadWith(f func(view []T) error) error {
	if k.closed {
		Abort(&UsageError{Reason: "use of key after Close"})
	}
	if k.writing {
		return &InvalidLease{Reason: "read requested while a write lease is active"}
	}
	if k.leases == 0 {
		if err := k.keyAlloc.GrantRead(k.addr); err != nil {
			return err
		}
	}
	k.leases++
	defer func() {
		k.leases--
		if k.leases == 0 {
			_ = k.keyAlloc.Revoke(k.addr)
		}
	}()
	return f(k.typedView())
}

// WriteWith grants exclusive ReadWrite access, invokes f with a read-write
// view, then revokes back to NoAccess on every exit path. It requires no
// other lease (read or write) be active.
func (k *Key[T]) WriteWith(f func(view []T) error) error {
	if k.closed {
		Abort(&UsageError{Reason: "use of key after Close"})
	}
	if k.leases > 0 {
		return &InvalidLease{Reason: "write requested while another lease is active"}
	}
	if err := k.keyAlloc.GrantWrite(k.addr); err != nil {
		return err
	}
	k.leases = 1
	k.writing = true
	defer func() {
		k.writing = false
		k.leases = 0
		_ = k.keyAlloc.Revoke(k.addr)
	}()
	return f(k.typedView())
}

// Close deallocates the key, wiping its contents. It is a UsageError to
// close a key with an active lease, or to close it twice.
func (k *Key[T]) Close() error {
	if k.closed {
		Abort(&UsageError{Reason: "double free of key"})
	}
	if k.leases > 0 {
		Abort(&UsageError{Reason: "close of key with an active lease"})
	}
	k.closed = true
	return k.keyAlloc.Deallocate(k.addr, k.size, k.align)
}
