package base

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/minio/sha256-simd"
)

// Fingerprint is a deterministic digest used as a cache key throughout the
// pipeline (source files, tool-flag vectors, IR artifacts). Grounded on
// ppb's utils/Fingerprint.go, which keys its action cache the same way.
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) ShortString() string {
	return hex.EncodeToString(f[:8])
}

func (f Fingerprint) Valid() bool {
	for _, b := range f {
		if b != 0 {
			return true
		}
	}
	return false
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(data []byte) error {
	decoded, err := hex.DecodeString(string(data))
	if err != nil {
		return err
	}
	if len(decoded) != sha256.Size {
		return fmt.Errorf("fingerprint: unexpected length %d in %q", len(decoded), data)
	}
	copy(f[:], decoded)
	return nil
}

// StringFingerprint hashes an in-memory string (flag vectors, normalized
// diagnostics, tool names).
func StringFingerprint(parts ...string) Fingerprint {
	h := sha256.New()
	for _, p := range parts {
		io.WriteString(h, p)
		h.Write([]byte{0}) // separator so ("ab","c") != ("a","bc")
	}
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// FileContentFingerprint hashes a file's full contents.
func FileContentFingerprint(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, err
	}
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out, nil
}

// MTimeSizeFingerprint is the cheap fallback proxy named in spec.md's data
// model: a digest of path+size+mtime, used when content hashing every file
// on every scan would be too slow.
func MTimeSizeFingerprint(path string, size int64, mtimeUnixNano int64) Fingerprint {
	return StringFingerprint(path, fmt.Sprint(size), fmt.Sprint(mtimeUnixNano))
}
