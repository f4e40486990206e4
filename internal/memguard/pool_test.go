package memguard

import "testing"

func TestPoolAcquireReleaseTracksLiveBytes(t *testing.T) {
	p := NewPool(4)
	d, err := p.AcquirePages(1, ReadWrite, true)
	if err != nil {
		t.Fatalf("AcquirePages: %v", err)
	}
	if got := p.LiveBytes(); got != int64(pageSize) {
		t.Fatalf("LiveBytes after acquire: got %d, want %d", got, pageSize)
	}
	if got := p.DescriptorFor(d.Base()); got != d {
		t.Fatalf("DescriptorFor(base): got %p, want %p", got, d)
	}
	if err := p.ReleasePages(d); err != nil {
		t.Fatalf("ReleasePages: %v", err)
	}
	if got := p.LiveBytes(); got != 0 {
		t.Fatalf("LiveBytes after release: got %d, want 0", got)
	}
	if got := p.DescriptorFor(d.Base()); got != nil {
		t.Fatalf("DescriptorFor after release: got %p, want nil", got)
	}
}

func TestPoolCacheEmptyMovesBytesFromLiveToCached(t *testing.T) {
	p := NewPool(4)
	d, err := p.AcquirePages(1, ReadWrite, true)
	if err != nil {
		t.Fatalf("AcquirePages: %v", err)
	}
	if err := p.CacheEmpty(d); err != nil {
		t.Fatalf("CacheEmpty: %v", err)
	}
	if got := p.LiveBytes(); got != 0 {
		t.Fatalf("LiveBytes after CacheEmpty: got %d, want 0", got)
	}
	if got := p.CachedBytes(); got != int64(pageSize) {
		t.Fatalf("CachedBytes after CacheEmpty: got %d, want %d", got, pageSize)
	}
	if got := p.DescriptorFor(d.Base()); got != nil {
		t.Fatalf("DescriptorFor on cached descriptor: got %p, want nil", got)
	}
	if got := p.CachedCount(); got != 1 {
		t.Fatalf("CachedCount: got %d, want 1", got)
	}
}

func TestPoolAcquireReusesCachedDescriptor(t *testing.T) {
	p := NewPool(4)
	d1, err := p.AcquirePages(1, ReadWrite, true)
	if err != nil {
		t.Fatalf("AcquirePages: %v", err)
	}
	base1 := d1.Base()
	if err := p.CacheEmpty(d1); err != nil {
		t.Fatalf("CacheEmpty: %v", err)
	}

	d2, err := p.AcquirePages(1, ReadWrite, true)
	if err != nil {
		t.Fatalf("AcquirePages (reuse): %v", err)
	}
	if d2.Base() != base1 {
		t.Fatalf("expected cached descriptor to be reused, got a fresh reservation")
	}
	if got := p.CachedBytes(); got != 0 {
		t.Fatalf("CachedBytes after reuse: got %d, want 0", got)
	}
	if got := p.LiveBytes(); got != int64(pageSize) {
		t.Fatalf("LiveBytes after reuse: got %d, want %d", got, pageSize)
	}
	if err := p.ReleasePages(d2); err != nil {
		t.Fatalf("ReleasePages: %v", err)
	}
}

func TestPoolCacheEmptyEvictsAtCapacity(t *testing.T) {
	p := NewPool(1)
	d1, _ := p.AcquirePages(1, ReadWrite, true)
	d2, _ := p.AcquirePages(1, ReadWrite, true)

	if err := p.CacheEmpty(d1); err != nil {
		t.Fatalf("CacheEmpty(d1): %v", err)
	}
	if err := p.CacheEmpty(d2); err != nil {
		t.Fatalf("CacheEmpty(d2): %v", err)
	}
	if got := p.CachedCount(); got != 1 {
		t.Fatalf("CachedCount at capacity 1: got %d, want 1", got)
	}
	if got := p.CachedBytes(); got != int64(pageSize) {
		t.Fatalf("CachedBytes at capacity 1: got %d, want %d", got, pageSize)
	}
}

func TestPoolDrainCacheReleasesEverything(t *testing.T) {
	p := NewPool(4)
	for i := 0; i < 3; i++ {
		d, err := p.AcquirePages(1, ReadWrite, true)
		if err != nil {
			t.Fatalf("AcquirePages: %v", err)
		}
		if err := p.CacheEmpty(d); err != nil {
			t.Fatalf("CacheEmpty: %v", err)
		}
	}
	if got := p.CachedCount(); got != 3 {
		t.Fatalf("CachedCount before drain: got %d, want 3", got)
	}
	if err := p.DrainCache(); err != nil {
		t.Fatalf("DrainCache: %v", err)
	}
	if got := p.CachedCount(); got != 0 {
		t.Fatalf("CachedCount after drain: got %d, want 0", got)
	}
	if got := p.CachedBytes(); got != 0 {
		t.Fatalf("CachedBytes after drain: got %d, want 0", got)
	}
}

func TestPoolDisabledCacheReleasesImmediately(t *testing.T) {
	p := NewPool(0)
	d, err := p.AcquirePages(1, ReadWrite, true)
	if err != nil {
		t.Fatalf("AcquirePages: %v", err)
	}
	if err := p.CacheEmpty(d); err != nil {
		t.Fatalf("CacheEmpty with caching disabled: %v", err)
	}
	if got := p.CachedCount(); got != 0 {
		t.Fatalf("CachedCount with caching disabled: got %d, want 0", got)
	}
	if got := p.LiveBytes(); got != 0 {
		t.Fatalf("LiveBytes after disabled-cache free: got %d, want 0", got)
	}
}
