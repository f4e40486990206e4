package memguard

import "sync"

// KeyAllocator exposes the same surface as ChunkAllocator, but every
// allocation — regardless of size — gets whole dedicated pages, born
// NoAccess, with no sharing and no caching. Free always returns straight to
// the OS. This is the one observable difference between the default and
// key-class allocators, and it's what lets Key treat any stored byte as
// inaccessible by default.
type KeyAllocator struct {
	pool *Pool // must have been constructed with cacheLimit <= 0

	mu   sync.Mutex
	live map[uintptr]*PageDescriptor
}

// NewKeyAllocator creates a key-class allocator. It owns its own pool
// (caching disabled) so it never shares pages with the default allocator.
func NewKeyAllocator() *KeyAllocator {
	return &KeyAllocator{
		pool: NewPool(0),
		live: make(map[uintptr]*PageDescriptor),
	}
}

// Allocate reserves size bytes (rounded up to whole pages) at NoAccess,
// guarded on both sides, with no chunk packing.
func (a *KeyAllocator) Allocate(size, align int) (uintptr, error) {
	n := pagesFor(size, align)
	d, err := a.pool.AcquirePages(n, NoAccess, true)
	if err != nil {
		return 0, &AllocationFailed{Size: size, Align: align, Cause: err}
	}
	a.mu.Lock()
	a.live[d.Base()] = d
	a.mu.Unlock()
	return d.Base(), nil
}

// Deallocate wipes and releases a key allocation straight to the OS.
func (a *KeyAllocator) Deallocate(addr uintptr, size, align int) error {
	a.mu.Lock()
	d, ok := a.live[addr]
	if ok {
		delete(a.live, addr)
	}
	a.mu.Unlock()
	if !ok {
		Abort(&UsageError{Reason: "deallocate: address not a known key allocation"})
	}
	return a.pool.ReleasePages(d)
}

// GrantRead transitions the region containing addr to ReadOnly.
func (a *KeyAllocator) GrantRead(addr uintptr) error {
	return a.transition(addr, ReadOnly)
}

// GrantWrite transitions the region containing addr to ReadWrite.
func (a *KeyAllocator) GrantWrite(addr uintptr) error {
	return a.transition(addr, ReadWrite)
}

// Revoke returns the region containing addr to NoAccess.
func (a *KeyAllocator) Revoke(addr uintptr) error {
	return a.transition(addr, NoAccess)
}

func (a *KeyAllocator) transition(addr uintptr, prot Prot) error {
	a.mu.Lock()
	d, ok := a.live[addr]
	a.mu.Unlock()
	if !ok {
		Abort(&UsageError{Reason: "protection change on unknown key allocation"})
	}
	if err := a.pool.Transition(d, prot); err != nil {
		return &ProtectionChangeFailed{Cause: err}
	}
	return nil
}

// View returns the current byte slice for a live allocation at the
// descriptor's current protection, for use only by the exact prot the
// caller just granted — callers must not retain this slice past Revoke.
func (a *KeyAllocator) View(addr uintptr, size int) []byte {
	a.mu.Lock()
	d, ok := a.live[addr]
	a.mu.Unlock()
	if !ok {
		Abort(&UsageError{Reason: "view of unknown key allocation"})
	}
	return d.usable()[:size]
}
