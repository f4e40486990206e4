//go:build !disable_page_lock

package memguard

import "golang.org/x/sys/unix"

// Locking is the default: build without the disable_page_lock tag and
// every reserved region is mlock'd against swap.
const lockingEnabled = true

func lockPagesImpl(b []byte) error {
	if err := unix.Mlock(b); err != nil {
		return &PageOpFailed{Which: "lock", OSErrno: err}
	}
	return nil
}

func unlockPagesImpl(b []byte) error {
	if err := unix.Munlock(b); err != nil {
		return &PageOpFailed{Which: "unlock", OSErrno: err}
	}
	return nil
}
