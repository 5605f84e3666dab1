package discovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/process"
	"github.com/cxxforge/cxxforge/internal/toolchain"
)

// DefaultMaxDepth is the discovery.max_depth default named in spec.md §9's
// second Open Question.
const DefaultMaxDepth = 64

// DefaultMaxNodes bounds pathological expansions alongside MaxDepth.
const DefaultMaxNodes = 100_000

var ErrGraphBoundExceeded = errors.New("discovery: dependency graph exceeded max node count")

// Node is one translation unit: a source file, or a header reachable from
// a source via transitive #include, per spec.md §3's data model.
type Node struct {
	AbsPath     string
	Fingerprint base.Fingerprint
	IncludeDirs []string
	Unknown     bool // "graph-unknown": unparseable deps, always treated as dirty
}

// Graph is a directed includer->includee graph, acyclic at the
// translation-unit level (header cycles collapse into a single visited
// node during traversal).
type Graph struct {
	Nodes map[string]*Node
	Edges map[string][]string // includer path -> includee paths
}

func newGraph() *Graph {
	return &Graph{Nodes: map[string]*Node{}, Edges: map[string][]string{}}
}

func (g *Graph) upsert(path string, fp base.Fingerprint) *Node {
	if n, ok := g.Nodes[path]; ok {
		return n
	}
	n := &Node{AbsPath: path, Fingerprint: fp}
	g.Nodes[path] = n
	return n
}

// BuildGraph invokes clang's dependency-emission mode for every C/C++
// source in scan and assembles the transitive header graph. The
// invocation runs under the toolchain's scoped environment, per spec.md
// §4.3.
func BuildGraph(ctx context.Context, d *toolchain.Descriptor, scan *FileScan, includeDirs []string, extraFlags []string, maxDepth int) (*Graph, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	g := newGraph()

	for _, src := range scan.Sources() {
		if len(g.Nodes) > DefaultMaxNodes {
			return nil, fmt.Errorf("%w: root=%s", ErrGraphBoundExceeded, scan.Root)
		}

		srcNode := g.upsert(src.AbsPath, src.Fingerprint)
		srcNode.IncludeDirs = includeDirs

		headers, err := dependenciesOf(ctx, d, src.AbsPath, includeDirs, extraFlags)
		if err != nil {
			base.LogWarning(LogDiscovery, "unparseable dependency output for %s: %v; marking graph-unknown", src.AbsPath, err)
			srcNode.Unknown = true
			continue
		}

		if len(headers) > maxDepth {
			base.LogWarning(LogDiscovery, "%s: %d headers exceeds max_depth=%d, marking graph-unknown", src.AbsPath, len(headers), maxDepth)
			srcNode.Unknown = true
			continue
		}

		for _, h := range headers {
			fp, ferr := base.FileContentFingerprint(h)
			if ferr != nil {
				fp = base.StringFingerprint(h)
			}
			hNode := g.upsert(h, fp)
			hNode.IncludeDirs = includeDirs
			g.Edges[src.AbsPath] = append(g.Edges[src.AbsPath], h)
		}
	}
	return g, nil
}

// dependenciesOf shells `clang++ -MM -MG` and parses the Makefile-fragment
// output into an ordered header list. The compiler's own resolution of
// which search directory satisfied a given #include is implicit in the
// output path it prints — we record that path verbatim rather than
// re-deriving it, honoring spec.md §4.3's "actual resolution, not first
// match" tie-break.
func dependenciesOf(ctx context.Context, d *toolchain.Descriptor, source string, includeDirs []string, extraFlags []string) ([]string, error) {
	args := []string{"-MM", "-MG"}
	for _, dir := range includeDirs {
		args = append(args, "-I", dir)
	}
	args = append(args, extraFlags...)
	args = append(args, source)

	result, err := d.Invoke(ctx, "clang++", args, process.Options{})
	if err != nil {
		return nil, fmt.Errorf("clang++ -MM failed: %w: %s", err, string(result.Output))
	}
	return parseMakeDeps(string(result.Output), source)
}

// parseMakeDeps parses a Makefile dependency fragment of the form
// "out.o: a.cpp b.h \\\n  c.h d.h" into the header list (everything after
// the first source entry).
func parseMakeDeps(output string, source string) ([]string, error) {
	joined := strings.ReplaceAll(output, "\\\n", " ")
	colon := strings.IndexByte(joined, ':')
	if colon < 0 {
		return nil, fmt.Errorf("no ':' in dependency output: %q", output)
	}
	fields := strings.Fields(joined[colon+1:])

	var headers []string
	for _, f := range fields {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		if abs == sourceAbs(source) {
			continue // the source itself is always first
		}
		headers = append(headers, abs)
	}
	return headers, nil
}

func sourceAbs(source string) string {
	abs, err := filepath.Abs(source)
	if err != nil {
		return source
	}
	return abs
}

// Invalidate marks cache entries referencing any of the given paths as
// stale by dropping their node; the next BuildGraph call re-derives them.
func (g *Graph) Invalidate(paths []string) {
	for _, p := range paths {
		delete(g.Nodes, p)
		delete(g.Edges, p)
	}
}
