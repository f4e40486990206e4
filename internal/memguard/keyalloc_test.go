package memguard

import "testing"

func TestKeyAllocatorBornNoAccess(t *testing.T) {
	a := NewKeyAllocator()
	addr, err := a.Allocate(32, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	d := a.pool.DescriptorFor(addr)
	if d == nil {
		t.Fatal("DescriptorFor: expected a live descriptor")
	}
	if d.Prot != NoAccess {
		t.Fatalf("Prot at birth: got %v, want NoAccess", d.Prot)
	}
	if err := a.Deallocate(addr, 32, 8); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
}

func TestKeyAllocatorGrantRevokeCycle(t *testing.T) {
	a := NewKeyAllocator()
	addr, err := a.Allocate(32, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	defer a.Deallocate(addr, 32, 8)

	if err := a.GrantWrite(addr); err != nil {
		t.Fatalf("GrantWrite: %v", err)
	}
	view := a.View(addr, 32)
	for i := range view {
		view[i] = byte(i)
	}
	if err := a.Revoke(addr); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if err := a.GrantRead(addr); err != nil {
		t.Fatalf("GrantRead: %v", err)
	}
	view = a.View(addr, 32)
	for i := range view {
		if view[i] != byte(i) {
			t.Fatalf("byte %d: got %d, want %d", i, view[i], i)
		}
	}
	if err := a.Revoke(addr); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
}

func TestKeyAllocatorNeverCaches(t *testing.T) {
	a := NewKeyAllocator()
	addr, err := a.Allocate(32, 8)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.Deallocate(addr, 32, 8); err != nil {
		t.Fatalf("Deallocate: %v", err)
	}
	if got := a.pool.CachedCount(); got != 0 {
		t.Fatalf("CachedCount after key deallocate: got %d, want 0 (never cached)", got)
	}
}

func TestKeyAllocatorTransitionOnUnknownAddrAborts(t *testing.T) {
	a := NewKeyAllocator()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a transition on an unknown address to abort")
		}
		if _, ok := r.(*UsageError); !ok {
			t.Fatalf("recovered value is %T, want *UsageError", r)
		}
	}()
	_ = a.GrantRead(0xdeadbeef)
}
