package memguard

import (
	"sync"

	"github.com/samber/lo"
)

// cacheKey identifies one LRU cache bucket: a reservation of n usable pages
// with (or without) guard pages.
type cacheKey struct {
	nPages    int
	wantGuard bool
}

// cacheBucket is an intrusive doubly-linked LRU list of fully-free
// descriptors — head is most-recently-freed, tail is evicted first.
type cacheBucket struct {
	head, tail *PageDescriptor
	count      int
}

func (c *cacheBucket) pushFront(d *PageDescriptor) {
	d.listPrev, d.listNext = nil, c.head
	if c.head != nil {
		c.head.listPrev = d
	}
	c.head = d
	if c.tail == nil {
		c.tail = d
	}
	c.count++
}

func (c *cacheBucket) popFront() *PageDescriptor {
	d := c.head
	if d == nil {
		return nil
	}
	c.unlink(d)
	return d
}

func (c *cacheBucket) popBack() *PageDescriptor {
	d := c.tail
	if d == nil {
		return nil
	}
	c.unlink(d)
	return d
}

func (c *cacheBucket) unlink(d *PageDescriptor) {
	if d.listPrev != nil {
		d.listPrev.listNext = d.listNext
	} else {
		c.head = d.listNext
	}
	if d.listNext != nil {
		d.listNext.listPrev = d.listPrev
	} else {
		c.tail = d.listPrev
	}
	d.listPrev, d.listNext = nil, nil
	c.count--
}

// Pool is the page pool: it reserves, caches, and releases whole
// pages, and is the sole writer of the OS page table on behalf of this
// heap.
type Pool struct {
	mu sync.Mutex

	cacheLimit int // max fully-free descriptors held per bucket; 0 disables caching
	buckets    map[cacheKey]*cacheBucket

	// addrIndex recovers a descriptor from any address inside its usable
	// region, for the chunk allocator's address->page masking on free.
	addrIndex map[uintptr]*PageDescriptor

	liveBytes   int64 // bytes reserved by live (indexed, in-use) descriptors
	cachedBytes int64 // bytes held by fully-free, cached descriptors
}

// NewPool creates a page pool whose cache holds at most cacheLimit
// fully-free descriptors per (n_pages, want_guard) bucket. cacheLimit <= 0
// disables caching entirely — used by the key allocator, which always
// releases straight to the OS.
func NewPool(cacheLimit int) *Pool {
	return &Pool{
		cacheLimit: cacheLimit,
		buckets:    make(map[cacheKey]*cacheBucket),
		addrIndex:  make(map[uintptr]*PageDescriptor),
	}
}

// AcquirePages reserves n usable pages at the given protection. When
// wantGuard is true, a guard page is added on each side and pinned at
// NoAccess for the descriptor's lifetime, favoring the safer two-guard
// layout over a single shared guard between adjacent allocations.
func (p *Pool) AcquirePages(n int, prot Prot, wantGuard bool) (*PageDescriptor, error) {
	if d := p.takeFromCache(n, wantGuard, prot); d != nil {
		return d, nil
	}

	guardBefore, guardAfter := wantGuard, wantGuard
	total := n
	if guardBefore {
		total++
	}
	if guardAfter {
		total++
	}

	mem, err := reserve(total, NoAccess)
	if err != nil {
		return nil, err
	}

	d := &PageDescriptor{
		mem:         mem,
		guardBefore: guardBefore,
		guardAfter:  guardAfter,
		LengthPages: n,
		Prot:        NoAccess,
	}

	if guardBefore || guardAfter {
		// Guard region(s) stay NoAccess; only set_prot the usable middle.
	}
	// lockPages is a no-op under disable_page_lock (lockingEnabled == false),
	// so this can only fail when locking is expected to work; surface it
	// rather than silently degrading to an unlocked page.
	if err := lockPages(d.usable()); err != nil {
		_ = release(mem)
		return nil, err
	}
	d.Locked = lockingEnabled

	if prot != NoAccess {
		if err := setProt(d.usable(), prot); err != nil {
			_ = unlockPages(d.usable())
			_ = release(mem)
			return nil, err
		}
		d.Prot = prot
	}

	tagDescriptor(d)
	p.mu.Lock()
	p.indexLocked(d)
	p.liveBytes += int64(n * pageSize)
	p.mu.Unlock()
	return d, nil
}

// ReleasePages wipes, unmaps, and forgets a live (indexed) descriptor. Used
// directly by the key allocator (which never caches) and by the chunk
// allocator whenever it returns a page straight to the OS instead of
// offering it to CacheEmpty.
func (p *Pool) ReleasePages(d *PageDescriptor) error {
	p.mu.Lock()
	p.unindexLocked(d)
	p.liveBytes -= int64(d.LengthPages * pageSize)
	p.mu.Unlock()
	return p.releaseMem(d)
}

// releaseMem does the actual wipe/unlock/unmap, with no addrIndex or
// byte-accounting bookkeeping — callers are responsible for having already
// removed d from whichever bookkeeping (live index or cache) it belonged
// to.
func (p *Pool) releaseMem(d *PageDescriptor) error {
	// The wipe must happen at ReadWrite regardless of the descriptor's
	// current protection, or the scrub store itself would fault.
	if d.Prot != ReadWrite {
		if err := setProt(d.usable(), ReadWrite); err != nil {
			return err
		}
	}
	wipe(d.usable())
	if d.Locked {
		_ = unlockPages(d.usable())
	}
	return release(d.mem)
}

// Transition changes protection and updates the descriptor atomically with
// respect to the caller — the descriptor never observably holds a stale
// Prot value while another goroutine holds the pool lock.
func (p *Pool) Transition(d *PageDescriptor, newProt Prot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d.Prot == newProt {
		return nil
	}
	if err := setProt(d.usable(), newProt); err != nil {
		return err
	}
	d.Prot = newProt
	return nil
}

// CacheEmpty offers a fully-free descriptor to the bounded LRU cache. Used
// by the chunk allocator when a chunk-class page becomes fully free. If the
// bucket is at capacity, or caching is disabled (cacheLimit <= 0), the
// descriptor is released to the OS instead.
func (p *Pool) CacheEmpty(d *PageDescriptor) error {
	if p.cacheLimit <= 0 {
		return p.ReleasePages(d)
	}

	key := cacheKey{nPages: d.LengthPages, wantGuard: d.guardBefore || d.guardAfter}
	regionBytes := int64(d.LengthPages * pageSize)

	p.mu.Lock()
	// d is moving from the live set to the cache: stop indexing it (a
	// cached page must never answer a DescriptorFor lookup) and move its
	// bytes from liveBytes to cachedBytes.
	p.unindexLocked(d)
	p.liveBytes -= regionBytes
	p.cachedBytes += regionBytes

	bucket := p.buckets[key]
	if bucket == nil {
		bucket = &cacheBucket{}
		p.buckets[key] = bucket
	}
	var evict *PageDescriptor
	if bucket.count >= p.cacheLimit {
		evict = bucket.popBack()
		if evict != nil {
			p.cachedBytes -= int64(evict.LengthPages * pageSize)
		}
	}
	p.mu.Unlock()

	if evict != nil {
		if err := p.releaseMem(evict); err != nil {
			return err
		}
	}

	// Reset to an unshared chunk class and wipe now so a later reuse
	// starts from an all-zero page, even though the allocator that claims
	// it next will see NoAccess until it transitions in.
	d.ChunkClass = 0
	d.free = nil
	d.inUse = 0
	if d.Prot != ReadWrite {
		if err := setProt(d.usable(), ReadWrite); err != nil {
			return err
		}
		d.Prot = ReadWrite
	}
	wipe(d.usable())
	if err := setProt(d.usable(), NoAccess); err != nil {
		return err
	}
	d.Prot = NoAccess

	p.mu.Lock()
	bucket.pushFront(d)
	p.mu.Unlock()
	return nil
}

// takeFromCache pops the most-recently-freed descriptor matching (n,
// wantGuard), if any, and brings it to the requested protection.
func (p *Pool) takeFromCache(n int, wantGuard bool, prot Prot) *PageDescriptor {
	key := cacheKey{nPages: n, wantGuard: wantGuard}

	p.mu.Lock()
	bucket := p.buckets[key]
	if bucket == nil {
		p.mu.Unlock()
		return nil
	}
	d := bucket.popFront()
	if d != nil {
		p.cachedBytes -= int64(d.LengthPages * pageSize)
	}
	p.mu.Unlock()
	if d == nil {
		return nil
	}

	if prot != NoAccess {
		if err := setProt(d.usable(), prot); err != nil {
			// The cached descriptor is still valid memory, but we can't
			// safely re-insert a partially-transitioned descriptor into
			// the cache's bookkeeping — release it to the OS instead of
			// risking a protection/accounting mismatch. The caller falls
			// back to a fresh reservation.
			_ = p.releaseMem(d)
			return nil
		}
		d.Prot = prot
	}
	p.mu.Lock()
	p.indexLocked(d)
	p.liveBytes += int64(d.LengthPages * pageSize)
	p.mu.Unlock()
	return d
}

// DrainCache releases every cached descriptor across all buckets to the OS.
func (p *Pool) DrainCache() error {
	p.mu.Lock()
	var all []*PageDescriptor
	for _, bucket := range p.buckets {
		for d := bucket.popFront(); d != nil; d = bucket.popFront() {
			all = append(all, d)
			p.cachedBytes -= int64(d.LengthPages * pageSize)
		}
	}
	p.mu.Unlock()

	// These descriptors were cached, not live: no addrIndex entries and no
	// liveBytes to reclaim, so releaseMem (not ReleasePages) is the right
	// call — it does the wipe/unlock/unmap without touching bookkeeping
	// that was never charged against them.
	for _, d := range all {
		if err := p.releaseMem(d); err != nil {
			return err
		}
	}
	return nil
}

// CachedCount returns the number of descriptors currently cached across all
// buckets, for tests and stats.
func (p *Pool) CachedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.SumBy(lo.Values(p.buckets), func(b *cacheBucket) int { return b.count })
}

// LiveBytes returns the total usable bytes currently reserved by live
// (in-use) descriptors; cached descriptors are excluded, see CachedBytes.
func (p *Pool) LiveBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liveBytes
}

// CachedBytes returns the total usable bytes held by fully-free, cached
// descriptors.
func (p *Pool) CachedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cachedBytes
}

// DescriptorFor recovers the descriptor owning addr, by masking addr down
// to a page boundary and consulting the side table. Returns nil if addr is
// not currently live. Every usable page of a live descriptor has its own
// entry in the table (see indexLocked), so one lookup suffices — no linear
// scan for the descriptor's start is needed.
func (p *Pool) DescriptorFor(addr uintptr) *PageDescriptor {
	base := addr &^ uintptr(pageSize-1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addrIndex[base]
}

func (p *Pool) indexLocked(d *PageDescriptor) {
	base := d.Base()
	for i := 0; i < d.LengthPages; i++ {
		p.addrIndex[base+uintptr(i*pageSize)] = d
	}
}

func (p *Pool) unindexLocked(d *PageDescriptor) {
	base := d.Base()
	for i := 0; i < d.LengthPages; i++ {
		delete(p.addrIndex, base+uintptr(i*pageSize))
	}
}
