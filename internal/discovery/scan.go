// Package discovery turns a project root into a categorized file inventory
// and a header-dependency graph, implementing spec.md §4.3. Grounded on
// ppb's utils/BuildGraph.go / BuildNode.go (node/edge/fingerprint shape),
// adapted from ppb's generic build graph to a concrete C/C++ include graph.
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cxxforge/cxxforge/internal/base"
)

var LogDiscovery = base.NewLogCategory("Discovery")

// Category classifies one file in a scan's inventory.
type Category string

const (
	CategoryCppSource Category = "cpp_source"
	CategoryCSource   Category = "c_source"
	CategoryCppHeader Category = "cpp_header"
	CategoryCHeader   Category = "c_header"
	CategoryStaticLib Category = "static_lib"
	CategorySharedLib Category = "shared_lib"
	CategoryExecutable Category = "executable"
	CategoryOther     Category = "other"
)

var extensionCategory = map[string]Category{
	".cpp": CategoryCppSource, ".cc": CategoryCppSource, ".cxx": CategoryCppSource, ".c++": CategoryCppSource,
	".c":   CategoryCSource,
	".hpp": CategoryCppHeader, ".hh": CategoryCppHeader, ".hxx": CategoryCppHeader, ".h++": CategoryCppHeader,
	".h":   CategoryCHeader,
	".a":   CategoryStaticLib,
	".so":  CategorySharedLib,
}

// DefaultIgnore names the directories a scan always skips, mirroring
// spec.md §4.3's "configured ignore set".
var DefaultIgnore = map[string]bool{
	"build": true, ".git": true, ".svn": true, ".hg": true, "node_modules": true,
}

// FileEntry is one file in a scan's inventory.
type FileEntry struct {
	AbsPath     string
	Size        int64
	ModTime     time.Time
	Fingerprint base.Fingerprint
	Category    Category
}

// FileScan is the result of scanning a project root, per spec.md §3's data
// model: categorized inventories plus inferred include directories.
type FileScan struct {
	Root         string
	ScannedAt    time.Time
	CppSources   []FileEntry
	CSources     []FileEntry
	CppHeaders   []FileEntry
	CHeaders     []FileEntry
	StaticLibs   []FileEntry
	SharedLibs   []FileEntry
	Executables  []FileEntry
	IncludeDirs  []string
	byPath       map[string]*FileEntry
}

func classify(path string) Category {
	ext := strings.ToLower(filepath.Ext(path))
	if cat, ok := extensionCategory[ext]; ok {
		return cat
	}
	if info, err := os.Stat(path); err == nil && info.Mode()&0111 != 0 && !info.IsDir() {
		return CategoryExecutable
	}
	return CategoryOther
}

// Scan walks root, categorizing every file and fingerprinting each entry
// with the cheap mtime+size proxy. Symlinked files are recorded once per
// resolved real path; symlinked directories are not descended into.
// Hidden directories and DefaultIgnore are skipped.
func Scan(root string) (*FileScan, error) {
	scan := &FileScan{Root: root, ScannedAt: time.Now(), byPath: map[string]*FileEntry{}}
	visited := map[string]bool{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || DefaultIgnore[name]) {
				return filepath.SkipDir
			}
			return nil
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			real = path
		}
		if visited[real] {
			return nil
		}
		visited[real] = true

		info, err := d.Info()
		if err != nil {
			return nil // unreadable entry: skip rather than abort the whole scan
		}

		entry := FileEntry{
			AbsPath:     path,
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			Fingerprint: base.MTimeSizeFingerprint(path, info.Size(), info.ModTime().UnixNano()),
			Category:    classify(path),
		}
		scan.add(entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	scan.IncludeDirs = inferIncludeDirs(scan)
	return scan, nil
}

func (s *FileScan) add(e FileEntry) {
	switch e.Category {
	case CategoryCppSource:
		s.CppSources = append(s.CppSources, e)
	case CategoryCSource:
		s.CSources = append(s.CSources, e)
	case CategoryCppHeader:
		s.CppHeaders = append(s.CppHeaders, e)
	case CategoryCHeader:
		s.CHeaders = append(s.CHeaders, e)
	case CategoryStaticLib:
		s.StaticLibs = append(s.StaticLibs, e)
	case CategorySharedLib:
		s.SharedLibs = append(s.SharedLibs, e)
	case CategoryExecutable:
		s.Executables = append(s.Executables, e)
	}
	stored := e
	s.byPath[e.AbsPath] = &stored
}

// Sources returns every C/C++ source file, a convenience used by both the
// dependency-graph builder and the compilation stage.
func (s *FileScan) Sources() []FileEntry {
	out := make([]FileEntry, 0, len(s.CppSources)+len(s.CSources))
	out = append(out, s.CppSources...)
	out = append(out, s.CSources...)
	return out
}

func (s *FileScan) Lookup(path string) (*FileEntry, bool) {
	e, ok := s.byPath[path]
	return e, ok
}

// inferIncludeDirs is the set of parent directories of headers plus the
// conventional <root>/include directory when it exists. An
// include/<project>/ subdirectory is only added when it directly holds a
// header.
func inferIncludeDirs(scan *FileScan) []string {
	set := map[string]bool{}
	for _, h := range append(append([]FileEntry{}, scan.CppHeaders...), scan.CHeaders...) {
		set[filepath.Dir(h.AbsPath)] = true
	}
	conventional := filepath.Join(scan.Root, "include")
	if info, err := os.Stat(conventional); err == nil && info.IsDir() {
		set[conventional] = true
	}

	out := make([]string, 0, len(set))
	for dir := range set {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}
