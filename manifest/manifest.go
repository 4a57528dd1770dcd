// Package manifest handles pyrite.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Manifest represents a pyrite.toml configuration file.
type Manifest struct {
	Compiler Compiler `toml:"compiler"`
	Cache    Cache    `toml:"cache"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the pyrite.toml file (set at load time).
	Dir string `toml:"-"`
}

// Compiler configures compile budgets and optimization switches.
type Compiler struct {
	// OpcodeBudget aborts compiles of functions with more instructions.
	OpcodeBudget int `toml:"opcode-budget"`
	// ILBudget bounds the emitted IL size per function.
	ILBudget int `toml:"il-budget"`
	// Unboxing toggles the machine-value optimization; off means every
	// operation runs boxed.
	Unboxing bool `toml:"unboxing"`
	// DebugGraph dumps the instruction graph of each compile in DOT form.
	DebugGraph bool `toml:"debug-graph"`
	// HotThreshold is the invocation count before a function compiles.
	HotThreshold uint64 `toml:"hot-threshold"`
}

// Cache configures the on-disk compile-artifact cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Log configures the logging backend.
type Log struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no pyrite.toml exists.
func Default() *Manifest {
	return &Manifest{
		Compiler: Compiler{
			OpcodeBudget: 4096,
			ILBudget:     65536,
			Unboxing:     true,
			HotThreshold: 100,
		},
		Log: Log{Level: "info"},
	}
}

// Load parses a pyrite.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "pyrite.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	m.Dir = dir
	return m, nil
}

// FindAndLoad walks upward from dir looking for pyrite.toml; when none is
// found the defaults apply.
func FindAndLoad(dir string) (*Manifest, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(abs, "pyrite.toml")); err == nil {
			return Load(abs)
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return Default(), nil
		}
		abs = parent
	}
}

func (m *Manifest) validate() error {
	if m.Compiler.OpcodeBudget < 0 {
		return fmt.Errorf("compiler.opcode-budget must not be negative")
	}
	if m.Compiler.ILBudget < 0 {
		return fmt.Errorf("compiler.il-budget must not be negative")
	}
	if m.Cache.Enabled && m.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when cache.enabled is set")
	}
	switch m.Log.Level {
	case "", "error", "warning", "notice", "info", "debug":
	default:
		return fmt.Errorf("log.level %q is not a known level", m.Log.Level)
	}
	return nil
}
