package secmem

import "github.com/brineshell/secmem/internal/memguard"

// Config mirrors internal/memguard.Config as the public surface for
// loading and saving the module's build-time knobs and pool sizing.
type Config = memguard.Config

// DefaultConfig returns the defaults: a modest cache, no background
// janitor, and the page-lock and stats fields set from this binary's build
// tags (page locking on, stats off in a build without tags).
func DefaultConfig() Config { return memguard.DefaultConfig() }

// LoadConfig reads a YAML config file, falling back to DefaultConfig
// values for any field the file omits.
func LoadConfig(path string) (Config, error) { return memguard.LoadConfig(path) }
