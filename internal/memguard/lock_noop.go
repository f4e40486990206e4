//go:build disable_page_lock

package memguard

// With disable_page_lock set, lock/unlock become no-ops — for environments
// whose locked-memory ulimit is too low to satisfy mlock. Every other page
// primitive still runs; only the swap-protection guarantee is dropped.
const lockingEnabled = false

func lockPagesImpl(b []byte) error   { return nil }
func unlockPagesImpl(b []byte) error { return nil }
