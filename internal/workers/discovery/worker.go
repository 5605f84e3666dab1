// Package discoveryworker adapts internal/discovery and internal/toolchain
// into the Discovery daemon's RPC surface, per spec.md §4.5.1's worker
// topology table ("Discovery owns §4.3 caches: tool map, file scans,
// dependency graphs"). Grounded on ppb's internal/hal worker wiring, now
// exposed over internal/daemon instead of an in-process call.
package discoveryworker

import (
	"context"
	"fmt"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/daemon"
	"github.com/cxxforge/cxxforge/internal/discovery"
	"github.com/cxxforge/cxxforge/internal/pipeline"
	"github.com/cxxforge/cxxforge/internal/toolchain"
	"github.com/cxxforge/cxxforge/internal/workers"
)

var LogDiscoveryWorker = base.NewLogCategory("DiscoveryWorker")

// Worker owns the Discovery daemon's caches for the process lifetime.
type Worker struct {
	Cache         *discovery.Cache
	ToolchainOpts toolchain.ProbeOptions
	MaxDepth      int
}

func New(opts toolchain.ProbeOptions) *Worker {
	return &Worker{Cache: discovery.NewCache(), ToolchainOpts: opts, MaxDepth: discovery.DefaultMaxDepth}
}

// Register wires every Discovery callback named in spec.md §4.5.1 onto mux.
func (w *Worker) Register(mux *daemon.Mux) {
	daemon.RegisterPing(mux)
	mux.Register("scan_files", w.scanFiles)
	mux.Register("build_graph", w.buildGraph)
	mux.Register("get_tool", w.getTool)
	mux.Register("get_all_tools", w.getAllTools)
	mux.Register("cache_stats", w.cacheStats)
	mux.Register("invalidate", w.invalidate)
}

func (w *Worker) scanFiles(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, err)
	}
	force := workers.BoolArg(args, "force", false)

	scan, hit, err := w.Cache.ScanIncremental(root, force)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, fmt.Errorf("scan_files: %w", err))
	}

	return workers.Ok(map[string]interface{}{
		"root":         scan.Root,
		"cpp_sources":  paths(scan.CppSources),
		"c_sources":    paths(scan.CSources),
		"cpp_headers":  paths(scan.CppHeaders),
		"c_headers":    paths(scan.CHeaders),
		"static_libs":  paths(scan.StaticLibs),
		"shared_libs":  paths(scan.SharedLibs),
		"executables":  paths(scan.Executables),
		"include_dirs": scan.IncludeDirs,
		"cache_hit":    hit,
	}), nil
}

func paths(entries []discovery.FileEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.AbsPath
	}
	return out
}

func (w *Worker) buildGraph(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, err)
	}
	includeDirs := workers.StringSliceArg(args, "include_dirs")
	extraFlags := workers.StringSliceArg(args, "tool_flags")
	maxDepth := workers.IntArg(args, "max_depth", w.MaxDepth)

	scan, _, err := w.Cache.ScanIncremental(root, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, fmt.Errorf("build_graph: rescan: %w", err))
	}

	d, err := toolchain.Get(ctx, w.ToolchainOpts, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, fmt.Errorf("build_graph: toolchain: %w", err))
	}

	graph, err := discovery.BuildGraph(ctx, d, scan, includeDirs, extraFlags, maxDepth)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, fmt.Errorf("build_graph: %w", err))
	}
	w.Cache.StoreGraph(root, graph)

	var unknown []string
	edgeCount := 0
	for path, node := range graph.Nodes {
		if node.Unknown {
			unknown = append(unknown, path)
		}
	}
	for _, edges := range graph.Edges {
		edgeCount += len(edges)
	}

	return workers.Ok(map[string]interface{}{
		"node_count":    len(graph.Nodes),
		"edge_count":    edgeCount,
		"unknown_nodes": unknown,
	}), nil
}

func (w *Worker) getTool(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	name, err := workers.RequireString(args, "name")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, err)
	}
	d, err := toolchain.Get(ctx, w.ToolchainOpts, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, err)
	}
	path, ok := d.Resolve(name)
	if !ok {
		return workers.Ok(map[string]interface{}{"success": false, "error": fmt.Sprintf("tool %q not available", name)}), nil
	}
	return workers.Ok(map[string]interface{}{"path": path, "provenance": string(d.Provenance)}), nil
}

func (w *Worker) getAllTools(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	force := workers.BoolArg(args, "force_refresh", false)
	d, err := toolchain.Get(ctx, w.ToolchainOpts, force)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, err)
	}
	tools := map[string]interface{}{}
	for name, path := range d.Tools {
		tools[name] = path
	}
	return workers.Ok(map[string]interface{}{"tools": tools, "version": d.Version.String(), "provenance": string(d.Provenance)}), nil
}

func (w *Worker) cacheStats(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	stats := w.Cache.Stats()
	return workers.Ok(map[string]interface{}{
		"scanned_roots": stats.ScannedRoots,
		"cached_graphs": stats.CachedGraphs,
	}), nil
}

func (w *Worker) invalidate(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageDiscovery, err)
	}
	filePaths := workers.StringSliceArg(args, "file_paths")

	if len(filePaths) == 0 {
		w.Cache.Invalidate(root)
		base.LogVerbose(LogDiscoveryWorker, "invalidated entire cache for %s", root)
		return workers.Ok(nil), nil
	}
	if graph, ok := w.Cache.CachedGraph(root); ok {
		graph.Invalidate(filePaths)
	}
	return workers.Ok(nil), nil
}
