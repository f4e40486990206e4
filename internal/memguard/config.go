package memguard

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config carries the module's build-time knobs plus pool sizing, in one
// place so it can be loaded from or saved to a YAML file
// (gopkg.in/yaml.v3).
type Config struct {
	// DisablePageLock records whether this binary was built with the
	// disable_page_lock tag. It does not itself flip the tag — that's a
	// compile-time decision — it only lets a saved config describe which
	// build produced it.
	DisablePageLock bool `yaml:"disable_page_lock"`

	// EmitAllocationStats records whether this binary was built with the
	// emit_allocation_stats tag, same caveat as above.
	EmitAllocationStats bool `yaml:"emit_allocation_stats"`

	// PageCacheLimit bounds how many fully-free descriptors a pool built
	// with it holds per (n_pages, want_guard) bucket; 0 disables caching.
	// The process-wide default allocator always uses DefaultConfig's value,
	// not a loaded one.
	PageCacheLimit int `yaml:"page_cache_limit"`

	// JanitorSchedule is the cron expression for a background
	// cache-draining Janitor. This package does not start one from the
	// config; secmemdemo starts one when the field is non-empty.
	JanitorSchedule string `yaml:"janitor_schedule,omitempty"`
}

// DefaultConfig returns the defaults: a modest cache, no background
// janitor, and the page-lock and stats fields set from this binary's build
// tags (page locking on, stats off in a build without tags).
func DefaultConfig() Config {
	return Config{
		DisablePageLock:     !lockingEnabled,
		EmitAllocationStats: statsEnabled,
		PageCacheLimit:      16,
	}
}

// LoadConfig reads a YAML config file, falling back to DefaultConfig
// values for any field the file omits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c Config) Save(path string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
