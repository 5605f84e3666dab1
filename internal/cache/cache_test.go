package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cxxforge/cxxforge/internal/base"
)

func TestStoreLookupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "ir"), true)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	key := Key{
		SourceFingerprint: base.StringFingerprint("hello.cpp"),
		FlagFingerprint:   base.StringFingerprint("-O2"),
		ToolchainVersion:  "18.1.0",
	}

	if _, ok := store.Lookup(key); ok {
		t.Fatal("expected a miss before anything is stored")
	}

	entry, err := store.Store(key, []byte("; LLVM IR goes here"))
	if err != nil {
		t.Fatal(err)
	}

	found, ok := store.Lookup(key)
	if !ok {
		t.Fatal("expected a hit after storing")
	}
	if found.Fingerprint != entry.Fingerprint {
		t.Fatalf("fingerprint mismatch: %v vs %v", found.Fingerprint, entry.Fingerprint)
	}

	ir, err := store.ReadIR(found)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ir, []byte("; LLVM IR goes here")) {
		t.Fatalf("IR payload did not round-trip: %q", ir)
	}
}

// TestReadIRDetectsCorruption tampers with a stored entry's payload bytes
// while keeping the zstd frame itself valid (decompression alone can't
// catch this), and expects ReadIR's fingerprint recheck to report it
// instead of silently returning corrupted IR as a cache hit.
func TestReadIRDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "ir"), true)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	key := Key{SourceFingerprint: base.StringFingerprint("hello.cpp")}
	entry, err := store.Store(key, []byte("; original IR"))
	if err != nil {
		t.Fatal(err)
	}

	tampered := append(append([]byte{}, entry.Fingerprint[:]...), []byte("; corrupted IR")...)
	compressed := store.encoder.EncodeAll(tampered, nil)
	if err := os.WriteFile(entry.Path, compressed, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.ReadIR(entry); err == nil {
		t.Fatal("expected ReadIR to detect the fingerprint mismatch and report an error")
	}
}

func TestCleanRemovesAllEntries(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "ir"), true)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	key := Key{SourceFingerprint: base.StringFingerprint("a.cpp")}
	if _, err := store.Store(key, []byte("ir")); err != nil {
		t.Fatal(err)
	}
	if store.Stats().Entries != 1 {
		t.Fatalf("expected 1 entry before clean, got %d", store.Stats().Entries)
	}
	if err := store.Clean(); err != nil {
		t.Fatal(err)
	}
	if store.Stats().Entries != 0 {
		t.Fatalf("expected 0 entries after clean, got %d", store.Stats().Entries)
	}
}
