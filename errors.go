package secmem

import "github.com/brineshell/secmem/internal/memguard"

// The five error kinds are defined in internal/memguard (where they
// originate, from the page primitives up through the key allocator) and
// re-exported here as the public API, the same way the standard library
// re-exports io.EOF-style sentinels from lower packages.
type (
	// AllocationFailed is returned when the OS refuses more memory or the
	// requested size/alignment cannot be satisfied.
	AllocationFailed = memguard.AllocationFailed

	// PageOpFailed wraps a failing page primitive.
	PageOpFailed = memguard.PageOpFailed

	// ProtectionChangeFailed surfaces from ReadWith/WriteWith when the
	// underlying protection transition fails; the callback is never
	// invoked.
	ProtectionChangeFailed = memguard.ProtectionChangeFailed

	// InvalidLease is returned by WriteWith when any lease is already
	// active, and by ReadWith while a write lease is active. Leases are
	// released only by the ReadWith/WriteWith call that took them, so no
	// path returns it for releasing an unacquired lease.
	InvalidLease = memguard.InvalidLease

	// UsageError marks a programming error — out-of-bounds access,
	// wrong-type deallocation, double-free. It is fatal: see Abort.
	UsageError = memguard.UsageError
)

// Abort panics on an invariant violation: a UsageError is fatal, since
// continuing risks exposing keys through a half-valid state.
func Abort(e *UsageError) { memguard.Abort(e) }
