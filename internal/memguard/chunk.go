package memguard

import (
	"sync"
	"unsafe"
)

// ptrOf returns the address of b's first byte. b must be non-empty.
func ptrOf(b []byte) uintptr { return uintptr(unsafe.Pointer(&b[0])) }

// minChunkClass is the smallest chunk size a class allocator will hand out.
// Below this, bitmap/list bookkeeping overhead dominates the allocation
// itself.
const minChunkClass = 16

// chunkClasses returns the ordered set of power-of-two class sizes from
// minChunkClass up to half the page size.
func chunkClasses() []int {
	var classes []int
	for c := minChunkClass; c <= pageSize/2; c <<= 1 {
		classes = append(classes, c)
	}
	return classes
}

// classFor returns the smallest class >= max(size, align), or 0 if no class
// fits (the request must go through the large path).
func classFor(size, align int) int {
	need := size
	if align > need {
		need = align
	}
	for _, c := range chunkClasses() {
		if c >= need {
			return c
		}
	}
	return 0
}

// ChunkAllocator is the small-allocation path: it subdivides pages
// into fixed-size chunk classes and packs multiple allocations per page,
// falling back to dedicated guarded pages from the pool for large requests.
type ChunkAllocator struct {
	pool *Pool

	mu      sync.Mutex
	partial map[int]*cacheBucket // class -> pages with >=1 free slot
	full    map[int]*cacheBucket // class -> pages with 0 free slots

	// large tracks whole-page allocations (no chunk class), by base
	// address, so Deallocate can tell a large allocation from a chunk one.
	large map[uintptr]*PageDescriptor
}

// NewChunkAllocator creates a small-object allocator backed by pool. pool
// should have caching enabled; the default allocator shares its cache
// across all classes via the (n_pages, want_guard) key.
func NewChunkAllocator(pool *Pool) *ChunkAllocator {
	return &ChunkAllocator{
		pool:    pool,
		partial: make(map[int]*cacheBucket),
		full:    make(map[int]*cacheBucket),
		large:   make(map[uintptr]*PageDescriptor),
	}
}

// Pool returns the page pool backing this allocator, for callers that want
// to wire a Janitor to it or inspect cache occupancy directly.
func (a *ChunkAllocator) Pool() *Pool { return a.pool }

// Allocate returns a chunk of at least size bytes, aligned to align.
// Because every class size is a power of two, chunk_base % align == 0
// follows from class selection alone.
func (a *ChunkAllocator) Allocate(size, align int) (uintptr, error) {
	class := classFor(size, align)
	if class == 0 {
		return a.allocateLarge(size, align)
	}
	return a.allocateSmall(class)
}

func (a *ChunkAllocator) allocateSmall(class int) (uintptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := a.partial[class]
	if bucket == nil {
		bucket = &cacheBucket{}
		a.partial[class] = bucket
	}

	d := bucket.head // most-recently-used partial page first, a deterministic tie-break
	if d == nil {
		nd, err := a.pool.AcquirePages(1, ReadWrite, true)
		if err != nil {
			return 0, &AllocationFailed{Size: class, Align: class, Cause: err}
		}
		nd.ChunkClass = class
		nd.free = newBitmap(nd.TotalChunks())
		bucket.pushFront(nd)
		d = nd
	}

	slot := d.free.lowestFree()
	if slot < 0 {
		// Shouldn't happen: a page only stays on the partial list while it
		// has a free slot.
		return 0, &UsageError{Reason: "partial-list page reports no free slot"}
	}
	d.free.clear(slot)
	d.inUse++
	if d.free.full() {
		bucket.unlink(d)
		fb := a.full[class]
		if fb == nil {
			fb = &cacheBucket{}
			a.full[class] = fb
		}
		fb.pushFront(d)
	}

	chunk := d.chunkAt(slot)
	return ptrOf(chunk), nil
}

func (a *ChunkAllocator) allocateLarge(size, align int) (uintptr, error) {
	n := pagesFor(size, align)
	d, err := a.pool.AcquirePages(n, ReadWrite, true)
	if err != nil {
		return 0, &AllocationFailed{Size: size, Align: align, Cause: err}
	}
	// pagesFor reserved align-pageSize spare bytes for align > pageSize, so
	// the first align-aligned address inside the region still fits size.
	addr := d.Base()
	if align > pageSize {
		addr = (addr + uintptr(align) - 1) &^ (uintptr(align) - 1)
	}
	a.mu.Lock()
	a.large[addr] = d
	a.mu.Unlock()
	return addr, nil
}

// Deallocate wipes and frees a previously-allocated chunk or large
// allocation. size/align must match the original request; that's how the
// caller's side re-derives the class.
func (a *ChunkAllocator) Deallocate(addr uintptr, size, align int) error {
	class := classFor(size, align)
	if class == 0 {
		return a.deallocateLarge(addr)
	}
	return a.deallocateSmall(addr, class)
}

func (a *ChunkAllocator) deallocateSmall(addr uintptr, class int) error {
	d := a.pool.DescriptorFor(addr)
	if d == nil || d.ChunkClass != class {
		Abort(&UsageError{Reason: "deallocate: address not owned by this chunk class"})
	}

	slot := d.slotFor(addr)
	if slot < 0 {
		Abort(&UsageError{Reason: "deallocate: address outside owning page"})
	}

	a.mu.Lock()
	if d.free.words[slot/64]&(uint64(1)<<uint(slot%64)) != 0 {
		a.mu.Unlock()
		Abort(&UsageError{Reason: "deallocate: double free of chunk"})
	}
	wasFull := d.free.full()
	wipe(d.chunkAt(slot))
	d.free.set(slot)
	d.inUse--

	if wasFull {
		a.full[class].unlink(d)
		bucket := a.partial[class]
		if bucket == nil {
			bucket = &cacheBucket{}
			a.partial[class] = bucket
		}
		bucket.pushFront(d)
	}

	if d.free.empty() {
		a.partial[class].unlink(d)
	}
	a.mu.Unlock()

	if d.free.empty() {
		return a.pool.CacheEmpty(d)
	}
	return nil
}

func (a *ChunkAllocator) deallocateLarge(addr uintptr) error {
	a.mu.Lock()
	d, ok := a.large[addr]
	if ok {
		delete(a.large, addr)
	}
	a.mu.Unlock()
	if !ok {
		Abort(&UsageError{Reason: "deallocate: address not a known large allocation"})
	}
	return a.pool.ReleasePages(d)
}

// Stats summarizes live allocator state. The counts below are kept in every
// build; the emit_allocation_stats tag only adds per-descriptor trace IDs
// (see stats_on.go).
type Stats struct {
	LiveChunksByClass map[int]int
	PagesCached       int
	BytesReserved     int64
}

// Statistics returns a snapshot of live chunk counts and reserved bytes.
func (a *ChunkAllocator) Statistics() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	live := make(map[int]int)
	for class, bucket := range a.partial {
		live[class] += sumInUse(bucket)
	}
	for class, bucket := range a.full {
		live[class] += sumInUse(bucket)
	}
	return Stats{
		LiveChunksByClass: live,
		PagesCached:       a.pool.CachedCount(),
		BytesReserved:     a.pool.LiveBytes(),
	}
}

func sumInUse(b *cacheBucket) int {
	total := 0
	for d := b.head; d != nil; d = d.listNext {
		total += d.inUse
	}
	return total
}

// pagesFor rounds a large request up to a whole number of pages, honoring
// alignment greater than one page by requesting enough extra pages (the
// page itself is always page-aligned, so any align <= pageSize is
// automatically satisfied).
func pagesFor(size, align int) int {
	need := size
	if align > pageSize {
		need += align - pageSize
	}
	n := (need + pageSize - 1) / pageSize
	if n < 1 {
		n = 1
	}
	return n
}
