package memguard

import (
	"strings"
	"testing"
)

func TestStatsStringIncludesClassesInOrder(t *testing.T) {
	s := Stats{
		LiveChunksByClass: map[int]int{64: 2, 16: 5, 32: 1},
		PagesCached:       3,
		BytesReserved:     int64(pageSize),
	}
	out := s.String()

	i16 := strings.Index(out, "class[16]=5")
	i32 := strings.Index(out, "class[32]=1")
	i64 := strings.Index(out, "class[64]=2")
	if i16 < 0 || i32 < 0 || i64 < 0 {
		t.Fatalf("expected all three class entries in output, got %q", out)
	}
	if !(i16 < i32 && i32 < i64) {
		t.Fatalf("expected classes in ascending order, got %q", out)
	}
	if !strings.Contains(out, "cached_pages=3") {
		t.Fatalf("expected cached_pages=3 in output, got %q", out)
	}
}
