package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cxxforge/cxxforge/internal/process"
)

// ProbeOptions lets the caller restrict or redirect the probe, mirroring the
// configuration document's llvm.source key ("auto", "embedded", "artifact").
type ProbeOptions struct {
	// Preferred restricts the probe to a single source when set to
	// SourceEmbedded or SourceArtifact; empty (or "auto") tries all three
	// in the fixed precedence order.
	Preferred Source

	// EmbeddedRoot is the conventional embedded-installation root, e.g.
	// "<project>/.cxxforge/llvm".
	EmbeddedRoot string

	// ArtifactRoots are package-managed installation roots to probe, e.g.
	// "/usr/lib/llvm-18", "/opt/homebrew/opt/llvm".
	ArtifactRoots []string
}

// candidateRoot is one directory tree the probe considers "complete" only
// if every RequiredTools entry is an existing, executable file under its
// bin/ subdirectory.
type candidateRoot struct {
	source Source
	root   string
	execDir string
}

// Probe implements spec.md §4.1's fixed precedence: embedded installation,
// then package-managed artifact, then ambient PATH. The first source that
// exposes every required tool wins; partial sources are rejected outright
// (no mixing tools from two sources).
func Probe(ctx context.Context, opts ProbeOptions) (*Descriptor, error) {
	candidates := buildCandidateList(opts)

	var lastErr error
	for _, c := range candidates {
		d, err := tryResolve(ctx, c)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("toolchain: no candidate source configured")
	}
	return nil, fmt.Errorf("toolchain: no complete LLVM installation found: %w", lastErr)
}

func buildCandidateList(opts ProbeOptions) []candidateRoot {
	var out []candidateRoot

	addEmbedded := func() {
		if opts.EmbeddedRoot != "" {
			out = append(out, candidateRoot{source: SourceEmbedded, root: opts.EmbeddedRoot, execDir: filepath.Join(opts.EmbeddedRoot, "bin")})
		}
	}
	addArtifacts := func() {
		for _, root := range opts.ArtifactRoots {
			out = append(out, candidateRoot{source: SourceArtifact, root: root, execDir: filepath.Join(root, "bin")})
		}
	}
	addPath := func() {
		out = append(out, candidateRoot{source: SourcePath, root: "", execDir: ""})
	}

	switch opts.Preferred {
	case SourceEmbedded:
		addEmbedded()
	case SourceArtifact:
		addArtifacts()
	case SourcePath:
		addPath()
	default:
		addEmbedded()
		addArtifacts()
		addPath()
	}
	return out
}

func tryResolve(ctx context.Context, c candidateRoot) (*Descriptor, error) {
	tools := map[string]string{}

	if c.source == SourcePath {
		for _, name := range AllTools {
			if path, err := exec.LookPath(name); err == nil {
				tools[name] = path
			}
		}
	} else {
		info, err := os.Stat(c.execDir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%s: %s is not a directory", c.source, c.execDir)
		}
		for _, name := range AllTools {
			candidate := filepath.Join(c.execDir, name)
			if st, err := os.Stat(candidate); err == nil && !st.IsDir() && isExecutable(st.Mode()) {
				tools[name] = candidate
			}
		}
	}

	for _, required := range RequiredTools {
		if _, ok := tools[required]; !ok {
			return nil, fmt.Errorf("%s: missing required tool %q", c.source, required)
		}
	}

	version, err := probeVersion(ctx, tools["llvm-config"])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.source, err)
	}

	root := c.root
	libDir := filepath.Join(root, "lib")
	headerDir := filepath.Join(root, "include")
	if c.source == SourcePath {
		root = filepath.Dir(filepath.Dir(tools["clang++"]))
		libDir = filepath.Join(root, "lib")
		headerDir = filepath.Join(root, "include")
	}

	return &Descriptor{
		InstallRoot: root,
		ExecDir:     c.execDir,
		LibDir:      libDir,
		HeaderDir:   headerDir,
		Version:     version,
		Tools:       tools,
		Env:         process.NewEnvironment(),
		Provenance:  c.source,
	}, nil
}

func isExecutable(mode os.FileMode) bool {
	return mode&0111 != 0
}

func probeVersion(ctx context.Context, llvmConfig string) (Version, error) {
	result, err := process.Run(ctx, llvmConfig, []string{"--version"}, process.Options{})
	if err != nil {
		return Version{}, fmt.Errorf("llvm-config --version failed: %w", err)
	}
	return parseVersion(string(result.Output))
}

func parseVersion(text string) (Version, error) {
	var v Version
	_, err := fmt.Sscanf(text, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil {
		// llvm-config sometimes prints just "major.minor"
		if _, err2 := fmt.Sscanf(text, "%d.%d", &v.Major, &v.Minor); err2 == nil {
			return v, nil
		}
		return v, fmt.Errorf("unparseable version string %q: %w", text, err)
	}
	return v, nil
}
