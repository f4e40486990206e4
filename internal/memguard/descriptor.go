package memguard

import (
	"unsafe"

	"github.com/google/uuid"
)

// bitmap is a fixed-width free-slot tracker for one chunk-class page. Bit i
// set means slot i is free.
type bitmap struct {
	words []uint64
	n     int
}

func newBitmap(n int) *bitmap {
	b := &bitmap{words: make([]uint64, (n+63)/64), n: n}
	for i := range b.words {
		b.words[i] = ^uint64(0)
	}
	if rem := n % 64; rem != 0 {
		b.words[len(b.words)-1] = (uint64(1) << uint(rem)) - 1
	}
	return b
}

// lowestFree returns the lowest-index free bit, or -1 if none. Lowest-index
// is a deliberate, deterministic tie-break over picking any free bit, which
// would make allocation order nondeterministic and harder to test.
func (b *bitmap) lowestFree() int {
	for w, word := range b.words {
		if word == 0 {
			continue
		}
		bit := trailingZeros64(word)
		idx := w*64 + bit
		if idx >= b.n {
			return -1
		}
		return idx
	}
	return -1
}

func (b *bitmap) clear(i int) { b.words[i/64] &^= uint64(1) << uint(i%64) }
func (b *bitmap) set(i int)   { b.words[i/64] |= uint64(1) << uint(i%64) }

func (b *bitmap) popcount() int {
	c := 0
	for _, w := range b.words {
		c += popcount64(w)
	}
	return c
}

func (b *bitmap) full() bool  { return b.popcount() == 0 }
func (b *bitmap) empty() bool { return b.popcount() == b.n }

func trailingZeros64(x uint64) int {
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

func popcount64(x uint64) int {
	c := 0
	for x != 0 {
		x &= x - 1
		c++
	}
	return c
}

// PageDescriptor is the pool's record of one reserved region: the usable
// pages plus their flanking guard page(s).
type PageDescriptor struct {
	mem         []byte // full reservation: [guard?][usable][guard?]
	guardBefore bool
	guardAfter  bool

	LengthPages int  // usable length, in pages
	Prot        Prot // current protection of the usable region
	Locked      bool

	// ChunkClass is 0 for pages not owned by a small-chunk class (large
	// allocations or not-yet-classed pages). Non-zero is the chunk size.
	ChunkClass int
	free       *bitmap // meaningful only when ChunkClass != 0
	inUse      int

	// TraceID is only populated when built with emit_allocation_stats; see
	// stats_on.go / stats_off.go.
	TraceID uuid.UUID

	// listPrev/listNext thread this descriptor onto exactly one of: a
	// chunk-class partial/full list, or the pool's LRU cache list. An
	// intrusive doubly-linked list avoids a separate allocation per node.
	listPrev, listNext *PageDescriptor
}

// Base returns the address of the first usable byte.
func (d *PageDescriptor) Base() uintptr {
	off := 0
	if d.guardBefore {
		off = pageSize
	}
	return uintptr(unsafe.Pointer(&d.mem[off]))
}

// usable returns the writable view of the data region at its current
// protection (callers must only read/write this when Prot permits it).
func (d *PageDescriptor) usable() []byte {
	start := 0
	if d.guardBefore {
		start = pageSize
	}
	end := start + d.LengthPages*pageSize
	return d.mem[start:end]
}

// TotalChunks returns how many class-sized slots this page holds.
func (d *PageDescriptor) TotalChunks() int {
	if d.ChunkClass == 0 {
		return 0
	}
	return (d.LengthPages * pageSize) / d.ChunkClass
}

// InUse returns the number of occupied chunk slots.
func (d *PageDescriptor) InUse() int { return d.inUse }

// FreeCount returns popcount(free_bitmap).
func (d *PageDescriptor) FreeCount() int {
	if d.free == nil {
		return 0
	}
	return d.free.popcount()
}

// chunkAt returns the usable-region slice for slot index i of a chunk-class
// page.
func (d *PageDescriptor) chunkAt(i int) []byte {
	u := d.usable()
	off := i * d.ChunkClass
	return u[off : off+d.ChunkClass]
}

// slotFor recovers the slot index owning addr, or -1 if addr does not lie
// within this page's usable region.
func (d *PageDescriptor) slotFor(addr uintptr) int {
	base := d.Base()
	end := base + uintptr(d.LengthPages*pageSize)
	if addr < base || addr >= end {
		return -1
	}
	return int(addr-base) / d.ChunkClass
}
