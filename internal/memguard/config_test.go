package memguard

import (
	"path/filepath"
	"testing"
)

func TestConfigSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secmem.yaml")

	want := Config{
		DisablePageLock:     true,
		EmitAllocationStats: true,
		PageCacheLimit:      32,
		JanitorSchedule:     "*/5 * * * *",
	}
	if err := want.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got != want {
		t.Fatalf("LoadConfig round trip: got %+v, want %+v", got, want)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("expected an error reading a missing config file")
	}
	if cfg != DefaultConfig() {
		t.Fatalf("cfg on error: got %+v, want DefaultConfig %+v", cfg, DefaultConfig())
	}
}
