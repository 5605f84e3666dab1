// Package toolchain resolves the LLVM tool set (clang++, opt, llvm-link,
// llvm-nm, llc, llvm-ar) and runs child processes against it under a scoped
// environment. It implements spec.md §4.1. Grounded on ppb's
// internal/hal/linux/LLVM.go (tool naming, version probe) and
// utils/Process.go (environment overlay).
package toolchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/process"
)

var LogToolchain = base.NewLogCategory("Toolchain")

// RequiredTools must all resolve from the same source for that source to
// "win" the probe, per spec.md §4.1.
var RequiredTools = []string{"clang++", "llvm-config", "opt", "llvm-link", "llc"}

// AllTools is the full set of logical tool names the descriptor tracks.
var AllTools = append(append([]string{}, RequiredTools...), "llvm-nm", "llvm-ar")

// Source distinguishes where a resolved toolchain came from.
type Source string

const (
	SourceEmbedded Source = "embedded"
	SourceArtifact Source = "artifact"
	SourcePath     Source = "path"
)

// Version is a parsed major.minor.patch triple.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Descriptor is the immutable, process-lifetime toolchain view described by
// spec.md §3. It is never mutated after Probe populates it — per §9's
// Design Notes this is an explicit value threaded through the pipeline, not
// a package-level mutable slot.
type Descriptor struct {
	InstallRoot string
	ExecDir     string
	LibDir      string
	HeaderDir   string
	Version     Version
	Tools       map[string]string // logical name -> absolute path
	Env         *process.Environment
	Provenance  Source
}

// Resolve returns the cached path for a tool name, or ok=false if it is
// absent — never a dangling entry, per spec.md §3's invariant.
func (d *Descriptor) Resolve(tool string) (string, bool) {
	path, ok := d.Tools[tool]
	return path, ok
}

// ScopedEnvironment overlays PATH/library-path/include-path ahead of the
// ambient environment for a single child-process invocation.
func (d *Descriptor) ScopedEnvironment() *process.Environment {
	env := process.OSEnviron()
	env.Prepend("PATH", d.ExecDir)
	env.Prepend("LD_LIBRARY_PATH", d.LibDir)
	env.Prepend("CPATH", d.HeaderDir)
	env.Append("CXXFORGE_TOOLCHAIN_ROOT", d.InstallRoot)
	env.Append("CXXFORGE_TOOLCHAIN_VERSION", d.Version.String())
	env.Merge(d.Env)
	return env
}

// Invoke runs a logical tool under the scoped environment.
func (d *Descriptor) Invoke(ctx context.Context, tool string, args []string, opts process.Options) (process.Result, error) {
	path, ok := d.Resolve(tool)
	if !ok {
		return process.Result{}, fmt.Errorf("toolchain: tool %q not available in this toolchain (provenance=%s)", tool, d.Provenance)
	}
	if opts.Env == nil {
		opts.Env = d.ScopedEnvironment()
	}
	return process.Run(ctx, path, args, opts)
}

// FailingTools runs `clang++ --version` and `llvm-config --version` and
// returns the set of required tools that are missing or exit nonzero, per
// spec.md §4.1's verify() operation.
func (d *Descriptor) FailingTools(ctx context.Context) []string {
	var failing []string
	for _, tool := range []string{"clang++", "llvm-config"} {
		path, ok := d.Resolve(tool)
		if !ok {
			failing = append(failing, tool)
			continue
		}
		if _, err := process.Run(ctx, path, []string{"--version"}, process.Options{Env: d.ScopedEnvironment()}); err != nil {
			failing = append(failing, tool)
		}
	}
	return failing
}

var (
	singletonMu sync.Mutex
	singleton   *Descriptor
)

// Get returns the process-lifetime Descriptor, probing and memoizing on
// first use. force re-probes, mirroring the orchestrator RPC's
// --force-refresh flag invalidating the memo.
func Get(ctx context.Context, opts ProbeOptions, force bool) (*Descriptor, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton != nil && !force {
		return singleton, nil
	}

	d, err := Probe(ctx, opts)
	if err != nil {
		return nil, err
	}
	singleton = d
	return singleton, nil
}
