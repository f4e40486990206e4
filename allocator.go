package secmem

import "github.com/brineshell/secmem/internal/memguard"

// Allocator is the capability Buffer is built on: allocate/deallocate a
// raw region, nothing more.
type Allocator interface {
	Allocate(size, align int) (uintptr, error)
	Deallocate(addr uintptr, size, align int) error
}

// KeyAllocator extends Allocator with the protection-transition operations
// Key needs. It forbids sharing and caching by construction — see
// internal/memguard.KeyAllocator.
type KeyAllocator interface {
	Allocator
	GrantRead(addr uintptr) error
	GrantWrite(addr uintptr) error
	Revoke(addr uintptr) error
	View(addr uintptr, size int) []byte
}

// Buffer and Key hold their allocator as an Allocator/KeyAllocator
// interface value, so every allocate, deallocate and protection call they
// make is an interface method call; no constructor (NewBuffer, Seal and the
// rest) selects the concrete type at compile time. The assertions below
// check that the concrete memguard types satisfy both interfaces.
var (
	_ Allocator    = (*memguard.ChunkAllocator)(nil)
	_ KeyAllocator = (*memguard.KeyAllocator)(nil)
)

// DefaultAllocator returns the process-wide small/large-object allocator
// lazily initialized on first use.
func DefaultAllocator() *memguard.ChunkAllocator {
	return memguard.DefaultChunkAllocator()
}

// DefaultKeyAllocator returns the process-wide key-class allocator,
// lazily initialized on first use.
func DefaultKeyAllocator() *memguard.KeyAllocator {
	return memguard.DefaultKeyAllocator()
}

// Teardown releases every cached and live descriptor held by the
// process-wide allocators. After Teardown, further allocation through the
// default allocators is a UsageError.
func Teardown() error { return memguard.Teardown() }

// NewPrivateAllocator creates an independent small/large-object allocator
// with its own page cache, for callers who don't want to share the
// process-wide pool (e.g. to isolate a test, or to size a cache for one
// workload). cacheLimit <= 0 disables caching.
func NewPrivateAllocator(cacheLimit int) *memguard.ChunkAllocator {
	return memguard.NewChunkAllocator(memguard.NewPool(cacheLimit))
}

// NewPrivateKeyAllocator creates an independent key-class allocator.
func NewPrivateKeyAllocator() *memguard.KeyAllocator {
	return memguard.NewKeyAllocator()
}
