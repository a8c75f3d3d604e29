// Package dbconfig loads engine-wide configuration for a single database
// process, the Go analogue of pelton's initialize(workers, consistent)
// lifecycle call (see original_source/pelton/connection.h, pelton/pelton.h).
package dbconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config controls engine-wide tunables. Defaults are applied the way the
// teacher's configfile package layers defaults under explicit file values.
type Config struct {
	// Workers is a worker-count setting. It is loaded and exposed through
	// session.Database.Config(); no package in this module reads it, and
	// no sink is constructed from it.
	Workers int `toml:"workers"`

	// Consistent is loaded and exposed through session.Database.Config();
	// no package in this module reads it, and candidate lookups behave the
	// same whichever value it holds.
	Consistent bool `toml:"consistent"`

	// ForgetRetentionDays is loaded and exposed through
	// session.Database.Config(); no package in this module reads it, and
	// FORGET keeps no deletion manifest.
	ForgetRetentionDays int `toml:"forget_retention_days"`

	// KVSyncWrites is loaded and exposed through session.Database.Config();
	// internal/kv does not read it. Statement atomicity does not depend on
	// it (§7).
	KVSyncWrites bool `toml:"kv_sync_writes"`

	// StatementTimeout bounds how long a single statement may run before the
	// caller-imposed cancellation in §5 is expected to have fired; purely
	// advisory at the config layer, enforced by the caller's context.
	StatementTimeout time.Duration `toml:"statement_timeout"`
}

// Default returns the engine's out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Workers:             4,
		Consistent:          true,
		ForgetRetentionDays: 30,
		KVSyncWrites:        false,
		StatementTimeout:    30 * time.Second,
	}
}

// Load reads a TOML config file at path, layering its values over Default().
// A missing file is not an error — the database is treated as using
// defaults only, mirroring the catalog's "if absent, fresh" rule in §6.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("dbconfig: decode %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg back to path as TOML, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dbconfig: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dbconfig: create %s: %w", path, err)
	}
	defer f.Close()
	enc := toml.NewEncoder(f)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("dbconfig: encode: %w", err)
	}
	return nil
}
