//go:build !emit_allocation_stats

package memguard

// statsEnabled reports whether this build exposes allocation counters.
const statsEnabled = false

// tagDescriptor is a no-op without emit_allocation_stats: no UUID
// allocation per page descriptor on the hot path.
func tagDescriptor(d *PageDescriptor) {}
