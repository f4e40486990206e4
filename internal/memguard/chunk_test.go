package memguard

import "testing"

func TestClassForPicksSmallestFittingClass(t *testing.T) {
	cases := []struct{ size, align, want int }{
		{size: 1, align: 1, want: minChunkClass},
		{size: 16, align: 1, want: 16},
		{size: 17, align: 1, want: 32},
		{size: 8, align: 32, want: 32},
	}
	for _, c := range cases {
		if got := classFor(c.size, c.align); got != c.want {
			t.Errorf("classFor(%d, %d): got %d, want %d", c.size, c.align, got, c.want)
		}
	}
}

func TestClassForFallsBackToLargePath(t *testing.T) {
	if got := classFor(pageSize, 1); got != 0 {
		t.Fatalf("classFor(pageSize, 1): got %d, want 0 (large path)", got)
	}
}

func TestChunkAllocatorSmallAllocateDeallocate(t *testing.T) {
	a := NewChunkAllocator(NewPool(4))
	addr, err := a.Allocate(24, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr == 0 {
		t.Fatal("Allocate returned a zero address")
	}
	if got := a.Statistics().LiveChunksByClass[32]; got != 1 {
		t.Fatalf("live chunks in class 32: got %d, want 1", got)
	}
	if err := a.Deallocate(addr, 24, 8); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if got := a.Statistics().LiveChunksByClass[32]; got != 0 {
		t.Fatalf("live chunks in class 32 after free: got %d, want 0", got)
	}
	if got := a.pool.CachedCount(); got != 1 {
		t.Fatalf("pool cache after last chunk on a page freed: got %d, want 1", got)
	}
}

func TestChunkAllocatorPacksMultipleSlotsPerPage(t *testing.T) {
	a := NewChunkAllocator(NewPool(4))
	class := 32
	perPage := pageSize / class

	addrs := make([]uintptr, 0, perPage)
	for i := 0; i < perPage; i++ {
		addr, err := a.Allocate(class, 1)
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		addrs = append(addrs, addr)
	}
	seen := make(map[uintptr]bool, len(addrs))
	for _, addr := range addrs {
		if seen[addr] {
			t.Fatalf("duplicate chunk address %#x handed out twice", addr)
		}
		seen[addr] = true
	}
	if got := a.Statistics().LiveChunksByClass[class]; got != perPage {
		t.Fatalf("live chunks after filling one page: got %d, want %d", got, perPage)
	}

	// One more allocation must land on a second page.
	extra, err := a.Allocate(class, 1)
	if err != nil {
		t.Fatalf("Allocate beyond one page: %v", err)
	}
	if seen[extra] {
		t.Fatal("allocation beyond a full page reused an in-use address")
	}

	for _, addr := range addrs {
		if err := a.Deallocate(addr, class, 1); err != nil {
			t.Fatalf("Deallocate: %v", err)
		}
	}
	if err := a.Deallocate(extra, class, 1); err != nil {
		t.Fatalf("Deallocate extra: %v", err)
	}
}

func TestChunkAllocatorLargeAllocationBypassesClasses(t *testing.T) {
	a := NewChunkAllocator(NewPool(4))
	size := pageSize + 1
	addr, err := a.Allocate(size, 1)
	if err != nil {
		t.Fatalf("Allocate large: %v", err)
	}
	if err := a.Deallocate(addr, size, 1); err != nil {
		t.Fatalf("Deallocate large: %v", err)
	}
}

func TestChunkAllocatorDoubleFreeAborts(t *testing.T) {
	a := NewChunkAllocator(NewPool(4))
	addr, err := a.Allocate(16, 1)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.Deallocate(addr, 16, 1); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a double-free to abort")
		}
		if _, ok := r.(*UsageError); !ok {
			t.Fatalf("recovered value is %T, want *UsageError", r)
		}
	}()
	_ = a.Deallocate(addr, 16, 1)
}
