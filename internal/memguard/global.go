package memguard

import "sync"

// The module's process-wide state is lazily initialized on first use and
// torn down only by an explicit Teardown call; nothing runs it
// automatically at process exit. After Teardown, further allocation requests
// are a UsageError rather than silently reinitializing — a library that
// quietly resurrects state after the caller asked for shutdown is more
// surprising than one that refuses.
var (
	globalOnce     sync.Once
	globalChunk    *ChunkAllocator
	globalKey      *KeyAllocator
	globalTornDown bool
	globalMu       sync.Mutex
)

func initGlobal() {
	globalOnce.Do(func() {
		globalChunk = NewChunkAllocator(NewPool(DefaultConfig().PageCacheLimit))
		globalKey = NewKeyAllocator()
	})
}

// DefaultChunkAllocator returns the process-wide small/large allocator
// lazily initialized on first use.
func DefaultChunkAllocator() *ChunkAllocator {
	globalMu.Lock()
	down := globalTornDown
	globalMu.Unlock()
	if down {
		Abort(&UsageError{Reason: "allocation requested after Teardown"})
	}
	initGlobal()
	return globalChunk
}

// DefaultKeyAllocator returns the process-wide key-class allocator,
// lazily initialized on first use.
func DefaultKeyAllocator() *KeyAllocator {
	globalMu.Lock()
	down := globalTornDown
	globalMu.Unlock()
	if down {
		Abort(&UsageError{Reason: "allocation requested after Teardown"})
	}
	initGlobal()
	return globalKey
}

// Teardown releases every cached and live descriptor held by the
// process-wide allocators, wiping each as it goes, and marks the module as
// torn down so later allocation attempts abort. It is safe to call even if
// the global allocators were never used.
func Teardown() error {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalTornDown = true

	if globalChunk == nil {
		return nil
	}
	if err := globalChunk.pool.DrainCache(); err != nil {
		return err
	}

	globalChunk.mu.Lock()
	var live []*PageDescriptor
	for _, bucket := range globalChunk.partial {
		for d := bucket.popFront(); d != nil; d = bucket.popFront() {
			live = append(live, d)
		}
	}
	for _, bucket := range globalChunk.full {
		for d := bucket.popFront(); d != nil; d = bucket.popFront() {
			live = append(live, d)
		}
	}
	for _, d := range globalChunk.large {
		live = append(live, d)
	}
	globalChunk.large = make(map[uintptr]*PageDescriptor)
	globalChunk.mu.Unlock()

	for _, d := range live {
		if err := globalChunk.pool.ReleasePages(d); err != nil {
			return err
		}
	}

	globalKey.mu.Lock()
	var keyLive []*PageDescriptor
	for _, d := range globalKey.live {
		keyLive = append(keyLive, d)
	}
	globalKey.live = make(map[uintptr]*PageDescriptor)
	globalKey.mu.Unlock()

	for _, d := range keyLive {
		if err := globalKey.pool.ReleasePages(d); err != nil {
			return err
		}
	}
	return nil
}
