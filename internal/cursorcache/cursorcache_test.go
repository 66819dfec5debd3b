package cursorcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Setenv("TAP_CACHE_DIR", t.TempDir())

	c := Load()
	c.Set(Key("/work/app", "backend:api"), 42)
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := Load()
	got, ok := reloaded.Get(Key("/work/app", "backend:api"))
	if !ok || got != 42 {
		t.Errorf("got (%d, %v), want (42, true)", got, ok)
	}
}

func TestLoadTreatsMissingFileAsEmpty(t *testing.T) {
	t.Setenv("TAP_CACHE_DIR", t.TempDir())
	c := Load()
	if _, ok := c.Get("anything"); ok {
		t.Error("expected empty cache for missing file")
	}
}

func TestLoadTreatsCorruptJSONAsEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TAP_CACHE_DIR", dir)
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := Load()
	if _, ok := c.Get("anything"); ok {
		t.Error("expected empty cache for corrupt file")
	}
}

func TestLoadTreatsNonRegularFileAsEmptyAndRemovesIt(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TAP_CACHE_DIR", dir)
	path := filepath.Join(dir, fileName)
	if err := os.Mkdir(path, 0o700); err != nil {
		t.Fatal(err)
	}
	c := Load()
	if _, ok := c.Get("anything"); ok {
		t.Error("expected empty cache for directory masquerading as cache file")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected non-regular cache file to be removed")
	}
}
