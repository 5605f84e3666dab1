package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/errorstore"
)

var LogPipeline = base.NewLogCategory("Pipeline")

// BuildOptions parametrizes build_project, per spec.md §4.5.2's signature.
type BuildOptions struct {
	ForceDiscovery bool
	ForceCompile   bool
	SkipDiscovery  bool // quick_compile: reuse the prior configuration document as-is
	ProjectName    string
}

// Result is the mapping returned to the caller, per spec.md §4.5.2 step 8
// and the failure payload described immediately after.
type Result struct {
	Success        bool
	LibraryPath    string
	Elapsed        time.Duration
	StageTimings   map[Stage]time.Duration
	FailedStage    Stage
	Error          string
	SuggestedFixes []errorstore.RankedFix
}

func newResult() *Result {
	return &Result{StageTimings: map[Stage]time.Duration{}}
}

// timed runs fn and records its wall-clock cost under stage in r.StageTimings.
func timed(r *Result, stage Stage, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()
	out, err := fn()
	r.StageTimings[stage] = time.Since(start)
	return out, err
}

// BuildProject implements spec.md §4.5.2's orchestrated build in full: a
// liveness check, then discovery, configuration, compilation, link &
// optimize, library emission, and symbol extraction, each dispatched to its
// owning worker. Any failure short-circuits the remaining steps and, if
// errStore is non-nil, attaches suggested fixes from the diagnostic text.
func BuildProject(ctx context.Context, eps Endpoints, errStore *errorstore.Store, root string, opts BuildOptions) (*Result, error) {
	overallStart := time.Now()
	r := newResult()

	fail := func(stage Stage, err error) (*Result, error) {
		r.FailedStage = stage
		r.Error = err.Error()
		r.Elapsed = time.Since(overallStart)
		if errStore != nil {
			diagnostic := diagnosticText(err)
			if _, recErr := errStore.RecordDiagnostic(diagnostic); recErr == nil {
				if fixes, sugErr := errStore.SuggestFixes(diagnostic, 0.3, 0.0, 5); sugErr == nil {
					r.SuggestedFixes = fixes
				}
			}
		}
		return r, nil
	}

	if se := preflight(ctx, eps); se != nil {
		return fail(StagePreflight, se.Err)
	}

	var scan map[string]interface{}
	if !opts.SkipDiscovery {
		var err error
		scan, err = timed(r, StageDiscovery, func() (map[string]interface{}, error) {
			return runDiscovery(ctx, eps, root, opts.ForceDiscovery)
		})
		if err != nil {
			return fail(StageDiscovery, err)
		}
	}

	cfgResult, err := timed(r, StageConfiguration, func() (map[string]interface{}, error) {
		return eps.Setup.Call(ctx, "generate_config", map[string]interface{}{
			"root":         root,
			"project_name": opts.ProjectName,
			"discovery":    scan,
		})
	})
	if err != nil {
		return fail(StageConfiguration, err)
	}

	compileOut, err := timed(r, StageCompile, func() (map[string]interface{}, error) {
		return eps.Compilation.Call(ctx, "compile_unit", map[string]interface{}{
			"root":          root,
			"force_compile": opts.ForceCompile,
			"config":        cfgResult,
		})
	})
	if err != nil {
		return fail(StageCompile, err)
	}

	linkOut, err := timed(r, StageLink, func() (map[string]interface{}, error) {
		irPaths, _ := compileOut["ir_paths"].([]interface{})
		linked, lerr := eps.Compilation.Call(ctx, "link_ir", map[string]interface{}{"ir_paths": irPaths, "root": root})
		if lerr != nil {
			return nil, lerr
		}
		optimized, oerr := eps.Compilation.Call(ctx, "optimize_ir", map[string]interface{}{
			"input_path": linked["linked_path"],
			"config":     cfgResult,
		})
		if oerr != nil {
			return nil, oerr
		}
		return optimized, nil
	})
	if err != nil {
		return fail(StageLink, err)
	}

	emitOut, err := timed(r, StageEmit, func() (map[string]interface{}, error) {
		return eps.Compilation.Call(ctx, "emit_library", map[string]interface{}{
			"optimized_path": linkOut["optimized_path"],
			"root":           root,
			"config":         cfgResult,
		})
	})
	if err != nil {
		return fail(StageEmit, err)
	}
	libraryPath, _ := emitOut["library_path"].(string)

	symbolsOut, err := timed(r, StageSymbols, func() (map[string]interface{}, error) {
		return eps.Compilation.Call(ctx, "extract_symbols", map[string]interface{}{
			"library_path": libraryPath,
			"config":       cfgResult,
		})
	})
	if err != nil {
		return fail(StageSymbols, err)
	}

	if _, err := eps.Setup.Call(ctx, "update", map[string]interface{}{
		"root":    root,
		"section": "symbols",
		"fields":  map[string]interface{}{"symbols": symbolsOut["symbols"]},
	}); err != nil {
		base.LogWarning(LogPipeline, "failed to write back symbols section: %v", err)
	}

	r.Success = true
	r.LibraryPath = libraryPath
	r.Elapsed = time.Since(overallStart)
	return r, nil
}

// diagnosticText recovers the raw compiler diagnostic from err for the
// Error Store to fingerprint: StageError.Output when one crossed the RPC
// boundary (worker errors serialize to a "stage=...\n--- output ---\n..."
// string, per pipeline.StageError.Error, even after an outer wrapper like
// "scan_files: %w" prefixes it), falling back to err's own message so a
// non-subprocess failure (e.g. preflight) still gets recorded.
func diagnosticText(err error) string {
	if se, ok := ParseStageError(err.Error()); ok && se.Output != "" {
		return se.Output
	}
	return err.Error()
}

func runDiscovery(ctx context.Context, eps Endpoints, root string, force bool) (map[string]interface{}, error) {
	scan, err := eps.Discovery.Call(ctx, "scan_files", map[string]interface{}{"root": root, "force": force})
	if err != nil {
		return nil, fmt.Errorf("scan_files: %w", err)
	}
	includeDirs, _ := scan["include_dirs"].([]interface{})
	graph, err := eps.Discovery.Call(ctx, "build_graph", map[string]interface{}{"root": root, "include_dirs": includeDirs})
	if err != nil {
		return nil, fmt.Errorf("build_graph: %w", err)
	}

	if _, err := eps.Setup.Call(ctx, "update", map[string]interface{}{
		"root":    root,
		"section": "discovery",
		"fields":  map[string]interface{}{"files": scan, "graph": graph, "include_dirs": includeDirs},
	}); err != nil {
		base.LogWarning(LogPipeline, "failed to write back discovery section: %v", err)
	}

	merged := map[string]interface{}{}
	for k, v := range scan {
		merged[k] = v
	}
	merged["graph"] = graph
	return merged, nil
}
