// Package memguard implements a page-granular protected heap: page
// primitives, a page pool with guard pages and an LRU cache, a chunk
// allocator for small shared allocations, and a key allocator that
// forbids sharing and caching. The root secmem package builds Buffer and
// Key containers on top.
package memguard

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Prot is a memory-protection level: NoAccess, ReadOnly, or ReadWrite.
// There is no executable bit because this heap never holds code.
type Prot int

const (
	NoAccess Prot = iota
	ReadOnly
	ReadWrite
)

func (p Prot) unixProt() int {
	switch p {
	case NoAccess:
		return unix.PROT_NONE
	case ReadOnly:
		return unix.PROT_READ
	case ReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	default:
		return unix.PROT_NONE
	}
}

func (p Prot) String() string {
	switch p {
	case NoAccess:
		return "NoAccess"
	case ReadOnly:
		return "ReadOnly"
	case ReadWrite:
		return "ReadWrite"
	default:
		return "Unknown"
	}
}

// pageSize is queried once at process start. The spec treats this as a
// platform constant; we cache it rather than calling getpagesize per op.
var pageSize = unix.Getpagesize()

// PageSize returns the OS page size in bytes.
func PageSize() int { return pageSize }

// scrubByte is written across every byte of a region on release.
const scrubByte = 0x00

// reserve maps n*pageSize bytes of anonymous, non-file-backed memory at the
// given initial protection. Contents are undefined until first write.
func reserve(n int, prot Prot) ([]byte, error) {
	length := n * pageSize
	b, err := unix.Mmap(-1, 0, length, prot.unixProt(), unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, &PageOpFailed{Which: "reserve", OSErrno: err}
	}
	return b, nil
}

// release unmaps a region previously returned by reserve.
func release(b []byte) error {
	if err := unix.Munmap(b); err != nil {
		return &PageOpFailed{Which: "release", OSErrno: err}
	}
	return nil
}

// setProt changes the protection of a (sub)region in place. The OS must
// honor the change before this returns; subsequent accesses that violate it
// fault.
func setProt(b []byte, prot Prot) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Mprotect(b, prot.unixProt()); err != nil {
		return &PageOpFailed{Which: "set_prot", OSErrno: err}
	}
	return nil
}

// lockPages pins a region resident, keeping it out of swap. It is a no-op
// when built with the disable_page_lock tag.
func lockPages(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return lockPagesImpl(b)
}

// unlockPages reverses lockPages.
func unlockPages(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unlockPagesImpl(b)
}

// wipe overwrites every byte of b with scrubByte. The loop must not be
// removable by dead-store elimination: b already escaped to an mmap'd
// region via unsafe pointer arithmetic by the time we reach this call, and
// runtime.KeepAlive pins it past the final store so the compiler cannot
// treat the writes as dead even if it later learns more about b's
// lifetime. This is the idiomatic Go substitute for a volatile write —
// the language has no volatile keyword or wipe intrinsic.
func wipe(b []byte) {
	for i := range b {
		b[i] = scrubByte
	}
	runtime.KeepAlive(b)
}
