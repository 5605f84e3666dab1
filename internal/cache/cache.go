// Package cache is the Compilation worker's IR-artifact cache: entries
// keyed by (source fingerprint, flag vector, toolchain version), storing a
// path to an on-disk IR file, per spec.md §3's "Compilation artifact" and
// §4.5.2 step 4. Grounded on ppb's action/ActionCache.go (content-addressed
// cache entries, compression), using klauspost/compress's zstd — the
// compression dependency poppolopoppo-ppb itself wires for cached bulk
// entries.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/cxxforge/cxxforge/internal/base"
)

var LogCache = base.NewLogCategory("Cache")

// Key identifies one cacheable compilation artifact.
type Key struct {
	SourceFingerprint base.Fingerprint
	FlagFingerprint   base.Fingerprint
	ToolchainVersion  string
}

func (k Key) String() string {
	combined := base.StringFingerprint(k.SourceFingerprint.String(), k.FlagFingerprint.String(), k.ToolchainVersion)
	return combined.String()
}

// Entry is the cached artifact: where the IR file lives on disk, and its
// own fingerprint so a consumer can verify it wasn't corrupted at rest.
type Entry struct {
	Path        string
	Fingerprint base.Fingerprint
}

// Store is a directory-backed, content-addressed cache. Each entry is
// stored zstd-compressed under <directory>/<key>.ir.zst; a cache miss or a
// corrupted entry is always treated as "recompile", never as a fatal
// error — per spec.md §7's Cache error kind being non-fatal.
type Store struct {
	directory string
	enabled   bool
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

func Open(directory string, enabled bool) (*Store, error) {
	if enabled {
		if err := os.MkdirAll(directory, 0o755); err != nil {
			return nil, fmt.Errorf("cache: mkdir %s: %w", directory, err)
		}
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Store{directory: directory, enabled: enabled, encoder: enc, decoder: dec}, nil
}

func (s *Store) Close() {
	s.encoder.Close()
	s.decoder.Close()
}

func (s *Store) pathFor(key Key) string {
	return filepath.Join(s.directory, key.String()+".ir.zst")
}

// Lookup returns the cached entry for key, if present and decodable. An
// entry that cannot be read, decoded or is too short to hold its
// fingerprint header is reported as a miss, never propagated as a fatal
// error; the payload itself is verified against the fingerprint by ReadIR.
func (s *Store) Lookup(key Key) (*Entry, bool) {
	if !s.enabled {
		return nil, false
	}
	path := s.pathFor(key)
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		base.LogWarning(LogCache, "cache: corrupted entry %s, treating as miss: %v", path, err)
		return nil, false
	}

	var fp base.Fingerprint
	if len(raw) < len(fp) {
		base.LogWarning(LogCache, "cache: truncated entry %s, treating as miss", path)
		return nil, false
	}
	copy(fp[:], raw[:len(fp)])
	return &Entry{Path: path, Fingerprint: fp}, true
}

// Store writes data (the compiled IR bytes) under key, compressed with
// zstd, returning the resulting Entry.
func (s *Store) Store(key Key, irData []byte) (*Entry, error) {
	if !s.enabled {
		return nil, fmt.Errorf("cache: store called while cache disabled")
	}
	fp := base.StringFingerprint(string(irData))
	payload := append(append([]byte{}, fp[:]...), irData...)
	compressed := s.encoder.EncodeAll(payload, nil)

	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, compressed, 0o644); err != nil {
		return nil, fmt.Errorf("cache: write %s: %w", path, err)
	}
	return &Entry{Path: path, Fingerprint: fp}, nil
}

// ReadIR decompresses and returns the raw IR bytes stored at entry.Path,
// stripping the leading fingerprint header Store wrote and recomputing it
// against the recovered bytes. A mismatch means the payload was corrupted
// at rest after zstd's own frame checksum still decoded successfully (e.g.
// a partial external rewrite) — treated as a cache-read failure like any
// other, so the caller falls back to recompiling rather than trusting
// corrupted IR.
func (s *Store) ReadIR(entry *Entry) ([]byte, error) {
	compressed, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, err
	}
	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, err
	}
	var fp base.Fingerprint
	if len(raw) < len(fp) {
		return nil, fmt.Errorf("cache: entry %s is truncated", entry.Path)
	}
	copy(fp[:], raw[:len(fp)])
	data := raw[len(fp):]
	if got := base.StringFingerprint(string(data)); got != fp {
		return nil, fmt.Errorf("cache: entry %s failed fingerprint verification, corrupted at rest", entry.Path)
	}
	return data, nil
}

// Stats reports occupancy for the daemon's cache_stats callback.
type Stats struct {
	Enabled   bool
	Directory string
	Entries   int
}

func (s *Store) Stats() Stats {
	stats := Stats{Enabled: s.enabled, Directory: s.directory}
	entries, err := os.ReadDir(s.directory)
	if err == nil {
		stats.Entries = len(entries)
	}
	return stats
}

// Clean removes every cached entry, used by the orchestrator's clean build.
func (s *Store) Clean() error {
	if !s.enabled {
		return nil
	}
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.Remove(filepath.Join(s.directory, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
