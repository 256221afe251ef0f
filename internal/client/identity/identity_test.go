package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetOnMissingFileReportsNoIdentity(t *testing.T) {
	store := NewFileStoreAt(filepath.Join(t.TempDir(), "identity.json"))

	if name, ok := store.Get(); ok || name != "" {
		t.Fatalf("expected no cached name, got %q ok=%v", name, ok)
	}
}

func TestSetThenGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	store := NewFileStoreAt(path)

	if err := store.Set("alice"); err != nil {
		t.Fatalf("set: %v", err)
	}

	name, ok := store.Get()
	if !ok || name != "alice" {
		t.Fatalf("expected alice, got %q ok=%v", name, ok)
	}

	// A fresh store reads the same name back from disk.
	again := NewFileStoreAt(path)
	name, ok = again.Get()
	if !ok || name != "alice" {
		t.Fatalf("expected alice after reload, got %q ok=%v", name, ok)
	}
}

func TestGetIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	store := NewFileStoreAt(path)
	if name, ok := store.Get(); ok || name != "" {
		t.Fatalf("expected corrupt file to read as no identity, got %q ok=%v", name, ok)
	}
}

func TestEmptyNameReadsAsNoIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	store := NewFileStoreAt(path)

	if err := store.Set(""); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Fatal("expected empty stored name to read as no identity")
	}
}
