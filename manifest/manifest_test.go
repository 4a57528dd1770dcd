package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "pyrite.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, `
[compiler]
opcode-budget = 128
il-budget = 2048
unboxing = false
hot-threshold = 5

[cache]
enabled = true
path = "/tmp/pyrite-cache.db"

[log]
level = "debug"
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Compiler.OpcodeBudget != 128 || m.Compiler.ILBudget != 2048 {
		t.Errorf("budgets = %d/%d", m.Compiler.OpcodeBudget, m.Compiler.ILBudget)
	}
	if m.Compiler.Unboxing {
		t.Error("unboxing should be disabled")
	}
	if m.Compiler.HotThreshold != 5 {
		t.Errorf("hot-threshold = %d", m.Compiler.HotThreshold)
	}
	if !m.Cache.Enabled || m.Cache.Path != "/tmp/pyrite-cache.db" {
		t.Errorf("cache = %+v", m.Cache)
	}
	if m.Log.Level != "debug" {
		t.Errorf("log level = %q", m.Log.Level)
	}
	if m.Dir != dir {
		t.Errorf("Dir = %q, want %q", m.Dir, dir)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, `[log]
level = "info"
`)
	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Compiler.OpcodeBudget != 4096 {
		t.Errorf("default opcode budget = %d", m.Compiler.OpcodeBudget)
	}
	if !m.Compiler.Unboxing {
		t.Error("unboxing should default on")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	write(t, root, `[compiler]
opcode-budget = 77
`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	m, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m.Compiler.OpcodeBudget != 77 {
		t.Errorf("opcode budget = %d, want 77", m.Compiler.OpcodeBudget)
	}
}

func TestFindAndLoadDefaults(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if m.Compiler.OpcodeBudget != 4096 || !m.Compiler.Unboxing {
		t.Errorf("defaults = %+v", m.Compiler)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"negative budget", "[compiler]\nopcode-budget = -1\n"},
		{"cache without path", "[cache]\nenabled = true\n"},
		{"bad log level", "[log]\nlevel = \"loud\"\n"},
	}
	for _, tc := range cases {
		dir := t.TempDir()
		write(t, dir, tc.content)
		if _, err := Load(dir); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}
