package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAbsentReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	doc, err := Load(filepath.Join(dir, "cxxforge.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if doc.SchemaVersion != SchemaVersion {
		t.Fatalf("expected default schema version %d, got %d", SchemaVersion, doc.SchemaVersion)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cxxforge.toml")

	doc := New()
	SetProject(doc, ProjectSection{Name: "hello", Root: dir})
	SetBinary(doc, BinarySection{LibraryName: "hello", LinkLibraries: []string{"pthread"}})
	Update(doc, StageDiscovery, map[string]interface{}{"custom_future_key": "keep-me"})

	if err := Save(doc, path); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if got := GetProject(reloaded); got.Name != "hello" || got.Root != dir {
		t.Fatalf("project section did not round-trip: %+v", got)
	}
	if got := GetBinary(reloaded); got.LibraryName != "hello" || len(got.LinkLibraries) != 1 || got.LinkLibraries[0] != "pthread" {
		t.Fatalf("binary section did not round-trip: %+v", got)
	}

	discovery := StageView(reloaded, StageDiscovery)
	if discovery["custom_future_key"] != "keep-me" {
		t.Fatalf("unknown key was not preserved across round trip: %+v", discovery)
	}
}

func TestEnabledDefaultsTrue(t *testing.T) {
	doc := New()
	if !Enabled(doc, StageSymbols) {
		t.Fatal("expected stage to be enabled by default")
	}
	Update(doc, StageSymbols, map[string]interface{}{"enabled": false})
	if Enabled(doc, StageSymbols) {
		t.Fatal("expected enabled=false to be honored")
	}
}

func TestSaveFailureDoesNotCorruptPriorDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cxxforge.toml")

	doc := New()
	SetProject(doc, ProjectSection{Name: "first", Root: dir})
	if err := Save(doc, path); err != nil {
		t.Fatal(err)
	}

	// Simulate a save failure for the *second* save: a regular file sits
	// where its parent directory would have to be created, so Save cannot
	// write there. The first document must survive untouched.
	blocker := filepath.Join(dir, "missing-subdir")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	badPath := filepath.Join(blocker, "cxxforge.toml")
	doc2 := New()
	SetProject(doc2, ProjectSection{Name: "second", Root: dir})
	if err := Save(doc2, badPath); err == nil {
		t.Fatal("expected the second save to fail")
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := GetProject(reloaded); got.Name != "first" {
		t.Fatalf("original document was corrupted: %+v", got)
	}
}
