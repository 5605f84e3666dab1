package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "src", "hello.cpp"), `#include "hello.h"
extern "C" int add(int a, int b) { return a + b; }
`)
	mustWrite(t, filepath.Join(root, "include", "hello.h"), "int add(int, int);\n")
	mustWrite(t, filepath.Join(root, "build", "stale.o"), "junk")
	return root
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanClassifiesAndSkipsIgnored(t *testing.T) {
	root := writeProject(t)

	scan, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(scan.CppSources) != 1 {
		t.Fatalf("expected 1 cpp source, got %d: %+v", len(scan.CppSources), scan.CppSources)
	}
	if len(scan.CHeaders) != 1 {
		t.Fatalf("expected 1 c header (.h), got %d", len(scan.CHeaders))
	}
	for _, e := range scan.Sources() {
		if filepath.Dir(e.AbsPath) == filepath.Join(root, "build") {
			t.Fatalf("build/ directory should have been skipped, found %s", e.AbsPath)
		}
	}
	if _, ok := scan.Lookup(filepath.Join(root, "build", "stale.o")); ok {
		t.Fatalf("build/ directory should have been skipped, found build/stale.o in the inventory")
	}
}

func TestScanIsStableWhenFilesystemUnchanged(t *testing.T) {
	root := writeProject(t)

	a, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.Sources()) != len(b.Sources()) {
		t.Fatalf("scan counts differ across repeat scans: %d vs %d", len(a.Sources()), len(b.Sources()))
	}
	for i, e := range a.Sources() {
		if e.Fingerprint != b.Sources()[i].Fingerprint {
			t.Fatalf("fingerprint changed for unchanged file %s", e.AbsPath)
		}
	}
}

func TestIncrementalCacheHitsWhenUnchanged(t *testing.T) {
	root := writeProject(t)
	cache := NewCache()

	_, hit, err := cache.ScanIncremental(root, false)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Fatal("first scan should never be a cache hit")
	}

	_, hit, err = cache.ScanIncremental(root, false)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Fatal("second scan of an unchanged tree should hit the cache")
	}
}

func TestInferIncludeDirs(t *testing.T) {
	root := writeProject(t)
	scan, err := Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, dir := range scan.IncludeDirs {
		if dir == filepath.Join(root, "include") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected include/ to be inferred, got %v", scan.IncludeDirs)
	}
}
