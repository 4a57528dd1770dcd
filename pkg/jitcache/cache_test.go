package jitcache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chazu/pyrite/pkg/dist"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := openTemp(t)
	a := &dist.Artifact{
		CodeHash:    "deadbeef",
		Version:     dist.ArtifactVersion,
		Name:        "f",
		OpcodeCount: 4,
	}
	if err := c.Put(a); err != nil {
		t.Fatalf("Put: %v", err)
	}
	back, err := c.Get("deadbeef")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if back.Name != "f" || back.OpcodeCount != 4 {
		t.Errorf("Get = %+v", back)
	}
}

func TestGetMiss(t *testing.T) {
	c := openTemp(t)
	_, err := c.Get("nothere")
	if !errors.Is(err, ErrMiss) {
		t.Errorf("error = %v, want ErrMiss", err)
	}
}

func TestPutReplaces(t *testing.T) {
	c := openTemp(t)
	a := &dist.Artifact{CodeHash: "h", Version: dist.ArtifactVersion, Name: "first"}
	if err := c.Put(a); err != nil {
		t.Fatalf("Put: %v", err)
	}
	a.Name = "second"
	if err := c.Put(a); err != nil {
		t.Fatalf("Put again: %v", err)
	}
	back, err := c.Get("h")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if back.Name != "second" {
		t.Errorf("Name = %q, want %q", back.Name, "second")
	}
	n, err := c.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestPrune(t *testing.T) {
	c := openTemp(t)
	a := &dist.Artifact{CodeHash: "old", Version: dist.ArtifactVersion}
	if err := c.Put(a); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Nothing is older than an hour yet.
	removed, err := c.Prune(time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 0 {
		t.Errorf("Prune removed %d, want 0", removed)
	}
	// Everything is older than a negative age.
	removed, err = c.Prune(-time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
}
