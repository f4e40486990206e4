//go:build emit_allocation_stats

package memguard

import "github.com/google/uuid"

// statsEnabled reports whether this build exposes allocation counters.
const statsEnabled = true

// tagDescriptor assigns a trace UUID for log correlation across
// acquire/transition/release.
func tagDescriptor(d *PageDescriptor) {
	d.TraceID = uuid.New()
}
