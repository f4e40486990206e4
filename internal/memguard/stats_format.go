package memguard

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
)

// String renders a Stats snapshot for logs and the secmemdemo CLI, using
// human-readable byte counts.
func (s Stats) String() string {
	classes := make([]int, 0, len(s.LiveChunksByClass))
	for c := range s.LiveChunksByClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	out := fmt.Sprintf("reserved=%s cached_pages=%d", humanize.Bytes(uint64(s.BytesReserved)), s.PagesCached)
	for _, c := range classes {
		out += fmt.Sprintf(" class[%d]=%d", c, s.LiveChunksByClass[c])
	}
	return out
}
