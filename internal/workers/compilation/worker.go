// Package compilationworker adapts internal/cache, internal/toolchain and
// internal/base's ThreadPool into the Compilation daemon's RPC surface: IR
// emission per translation unit, link & optimize, shared library emission,
// and symbol extraction, per spec.md §4.5.1-4.5.2. Grounded on ppb's
// compile/ package (per-unit compilation invocation shape) and
// internal/hal's linker invocation, generalized from ppb's object-file
// pipeline to an IR-emitting one (clang++ -emit-llvm / llvm-link / opt).
package compilationworker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/cache"
	"github.com/cxxforge/cxxforge/internal/daemon"
	"github.com/cxxforge/cxxforge/internal/discovery"
	"github.com/cxxforge/cxxforge/internal/pipeline"
	"github.com/cxxforge/cxxforge/internal/process"
	"github.com/cxxforge/cxxforge/internal/toolchain"
	"github.com/cxxforge/cxxforge/internal/workers"
)

var LogCompilationWorker = base.NewLogCategory("CompilationWorker")

// Worker owns the IR-artifact cache and the toolchain handle for the
// process lifetime.
type Worker struct {
	CacheStore    *cache.Store
	ToolchainOpts toolchain.ProbeOptions
	Parallelism   int
}

func New(cacheStore *cache.Store, opts toolchain.ProbeOptions, parallelism int) *Worker {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	return &Worker{CacheStore: cacheStore, ToolchainOpts: opts, Parallelism: parallelism}
}

func (w *Worker) Register(mux *daemon.Mux) {
	daemon.RegisterPing(mux)
	mux.Register("compile_unit", w.compileUnit)
	mux.Register("link_ir", w.linkIR)
	mux.Register("optimize_ir", w.optimizeIR)
	mux.Register("emit_library", w.emitLibrary)
	mux.Register("extract_symbols", w.extractSymbols)
	mux.Register("cache_stats", w.cacheStats)
	mux.Register("clean_cache", w.cleanCache)
}

type compileOutcome struct {
	irPath   string
	cacheHit bool
}

// compileUnit implements spec.md §4.5.2 step 4: one IR cache keyed by
// (source fingerprint, flag vector, toolchain version) per translation
// unit, processed in parallel up to Parallelism, order-independent.
func (w *Worker) compileUnit(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageCompile, err)
	}
	forceCompile := workers.BoolArg(args, "force_compile", false)
	cfg := workers.MapArg(args, "config")
	flags := workers.StringSliceArg(cfg, "compile_flags")
	outputDir := workers.StringArg(cfg, "output_dir", "build/ir")
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(root, outputDir)
	}
	parallel := workers.IntArg(cfg, "parallel", 0)
	if parallel <= 0 {
		parallel = w.Parallelism
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, pipeline.Fail(pipeline.StageCompile, fmt.Errorf("compile_unit: mkdir %s: %w", outputDir, err))
	}

	scan, err := discovery.Scan(root)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageCompile, fmt.Errorf("compile_unit: scan: %w", err))
	}
	d, err := toolchain.Get(ctx, w.ToolchainOpts, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageCompile, fmt.Errorf("compile_unit: toolchain: %w", err))
	}

	sources := scan.Sources()
	if len(sources) == 0 {
		return nil, pipeline.Fail(pipeline.StageCompile, fmt.Errorf("compile_unit: no translation units found under %s", root))
	}
	pool := base.NewFixedSizeThreadPool("compile", parallel)
	defer pool.Close()

	var mu sync.Mutex
	outcomes := make(map[string]compileOutcome, len(sources))
	var firstErr *pipeline.StageError

	for _, src := range sources {
		src := src
		pool.Queue(func(int) {
			outPath, hit, cerr := w.compileOne(ctx, d, src, flags, outputDir, forceCompile)
			mu.Lock()
			defer mu.Unlock()
			if cerr != nil {
				if firstErr == nil {
					firstErr = cerr
				}
				return
			}
			outcomes[src.AbsPath] = compileOutcome{irPath: outPath, cacheHit: hit}
		})
	}
	pool.Join()

	if firstErr != nil {
		return nil, firstErr
	}

	var irPaths []string
	cacheHits, compiled := 0, 0
	for _, src := range sources {
		o := outcomes[src.AbsPath]
		irPaths = append(irPaths, o.irPath)
		if o.cacheHit {
			cacheHits++
		} else {
			compiled++
		}
	}

	return workers.Ok(map[string]interface{}{
		"ir_paths":       irPaths,
		"compiled_count": compiled,
		"cache_hits":     cacheHits,
	}), nil
}

func (w *Worker) compileOne(ctx context.Context, d *toolchain.Descriptor, src discovery.FileEntry, flags []string, outputDir string, force bool) (string, bool, *pipeline.StageError) {
	version := d.Version.String()
	key := cache.Key{
		SourceFingerprint: src.Fingerprint,
		FlagFingerprint:   base.StringFingerprint(flags...),
		ToolchainVersion:  version,
	}
	outPath := filepath.Join(outputDir, key.String()+".ll")

	if !force {
		if entry, ok := w.CacheStore.Lookup(key); ok {
			if data, err := w.CacheStore.ReadIR(entry); err == nil {
				if err := os.WriteFile(outPath, data, 0o644); err == nil {
					return outPath, true, nil
				}
			}
		}
	}

	args := append([]string{"-S", "-emit-llvm", "-c", src.AbsPath, "-o", outPath}, flags...)
	result, err := d.Invoke(ctx, "clang++", args, process.Options{})
	if err != nil {
		return "", false, &pipeline.StageError{Stage: pipeline.StageCompile, Err: err, Command: "clang++ " + strings.Join(args, " "), Output: string(result.Output)}
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", false, &pipeline.StageError{Stage: pipeline.StageCompile, Err: fmt.Errorf("read emitted IR: %w", err)}
	}
	if _, err := w.CacheStore.Store(key, data); err != nil {
		base.LogWarning(LogCompilationWorker, "failed to populate IR cache for %s: %v", src.AbsPath, err)
	}
	return outPath, false, nil
}

// linkIR merges every translation unit's IR with llvm-link, skipping the
// step on a cache hit keyed by the combined input fingerprint.
func (w *Worker) linkIR(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageLink, err)
	}
	irPaths := workers.StringSliceArg(args, "ir_paths")
	if len(irPaths) == 0 {
		return nil, pipeline.Fail(pipeline.StageLink, fmt.Errorf("link_ir: no input IR files"))
	}

	d, err := toolchain.Get(ctx, w.ToolchainOpts, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageLink, err)
	}

	outputDir := filepath.Dir(irPaths[0])
	linkedPath := filepath.Join(outputDir, "linked.ll")
	key := combinedKey(irPaths, "link", d.Version.String())

	if entry, ok := w.CacheStore.Lookup(key); ok {
		if data, err := w.CacheStore.ReadIR(entry); err == nil {
			if err := os.WriteFile(linkedPath, data, 0o644); err == nil {
				return workers.Ok(map[string]interface{}{"linked_path": linkedPath, "cache_hit": true}), nil
			}
		}
	}

	linkArgs := append(append([]string{}, irPaths...), "-S", "-o", linkedPath)
	result, err := d.Invoke(ctx, "llvm-link", linkArgs, process.Options{WorkingDir: root})
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageLink, Err: err, Command: "llvm-link " + strings.Join(linkArgs, " "), Output: string(result.Output)}
	}

	data, err := os.ReadFile(linkedPath)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageLink, fmt.Errorf("read linked IR: %w", err))
	}
	if _, err := w.CacheStore.Store(key, data); err != nil {
		base.LogWarning(LogCompilationWorker, "failed to cache linked IR: %v", err)
	}
	return workers.Ok(map[string]interface{}{"linked_path": linkedPath, "cache_hit": false}), nil
}

// optimizeIR runs `opt` at the configured level, skipping on a cache hit
// keyed by the input fingerprint plus opt level.
func (w *Worker) optimizeIR(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	inputPath, err := workers.RequireString(args, "input_path")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageLink, err)
	}
	cfg := workers.MapArg(args, "config")
	optLevel := normalizeOptLevel(workers.StringArg(cfg, "opt_level", "O2"))

	d, err := toolchain.Get(ctx, w.ToolchainOpts, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageLink, err)
	}

	inputFP, err := base.FileContentFingerprint(inputPath)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageLink, fmt.Errorf("optimize_ir: %w", err))
	}
	key := cache.Key{SourceFingerprint: inputFP, FlagFingerprint: base.StringFingerprint(optLevel), ToolchainVersion: d.Version.String()}
	outputPath := filepath.Join(filepath.Dir(inputPath), "optimized.ll")

	if entry, ok := w.CacheStore.Lookup(key); ok {
		if data, err := w.CacheStore.ReadIR(entry); err == nil {
			if err := os.WriteFile(outputPath, data, 0o644); err == nil {
				return workers.Ok(map[string]interface{}{"optimized_path": outputPath, "cache_hit": true}), nil
			}
		}
	}

	optArgs := []string{optLevel, "-S", inputPath, "-o", outputPath}
	result, err := d.Invoke(ctx, "opt", optArgs, process.Options{})
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageLink, Err: err, Command: "opt " + strings.Join(optArgs, " "), Output: string(result.Output)}
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageLink, fmt.Errorf("read optimized IR: %w", err))
	}
	if _, err := w.CacheStore.Store(key, data); err != nil {
		base.LogWarning(LogCompilationWorker, "failed to cache optimized IR: %v", err)
	}
	return workers.Ok(map[string]interface{}{"optimized_path": outputPath, "cache_hit": false}), nil
}

func normalizeOptLevel(level string) string {
	level = strings.TrimPrefix(level, "-")
	if !strings.HasPrefix(level, "O") {
		level = "O" + level
	}
	return "-" + level
}

// emitLibrary invokes clang++ as linker with -shared to produce
// lib<name>.<platform-ext>, per spec.md §4.5.2 step 6.
func (w *Worker) emitLibrary(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	optimizedPath, err := workers.RequireString(args, "optimized_path")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageEmit, err)
	}
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageEmit, err)
	}
	cfg := workers.MapArg(args, "config")
	libraryName := workers.StringArg(cfg, "library_name", "out")
	linkLibraries := workers.StringSliceArg(cfg, "link_libraries")

	d, err := toolchain.Get(ctx, w.ToolchainOpts, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageEmit, err)
	}

	libraryDir := filepath.Join(root, "julia")
	if err := os.MkdirAll(libraryDir, 0o755); err != nil {
		return nil, pipeline.Fail(pipeline.StageEmit, fmt.Errorf("emit_library: mkdir: %w", err))
	}
	libraryPath := filepath.Join(libraryDir, "lib"+libraryName+platformExt())

	linkArgs := []string{"-shared", "-fPIC", optimizedPath, "-o", libraryPath}
	for _, lib := range linkLibraries {
		linkArgs = append(linkArgs, "-l"+lib)
	}

	result, err := d.Invoke(ctx, "clang++", linkArgs, process.Options{})
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageEmit, Err: err, Command: "clang++ " + strings.Join(linkArgs, " "), Output: string(result.Output)}
	}

	return workers.Ok(map[string]interface{}{"library_path": libraryPath}), nil
}

func platformExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// extractSymbols runs llvm-nm over the emitted library and collects
// externally defined symbols, per spec.md §4.5.2 step 7.
func (w *Worker) extractSymbols(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	libraryPath, err := workers.RequireString(args, "library_path")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageSymbols, err)
	}
	cfg := workers.MapArg(args, "config")
	demangle := workers.BoolArg(cfg, "demangle", true)

	d, err := toolchain.Get(ctx, w.ToolchainOpts, false)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageSymbols, err)
	}

	nmArgs := []string{"--defined-only", "--extern-only"}
	if demangle {
		nmArgs = append(nmArgs, "--demangle")
	}
	nmArgs = append(nmArgs, libraryPath)

	result, err := d.Invoke(ctx, "llvm-nm", nmArgs, process.Options{})
	if err != nil {
		return nil, &pipeline.StageError{Stage: pipeline.StageSymbols, Err: err, Command: "llvm-nm " + strings.Join(nmArgs, " "), Output: string(result.Output)}
	}

	symbols := parseNmOutput(result.Output)
	return workers.Ok(map[string]interface{}{"symbols": symbols}), nil
}

// parseNmOutput extracts the trailing symbol name from each
// "<address> <type> <name>" llvm-nm line.
func parseNmOutput(output []byte) []string {
	var symbols []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		symbols = append(symbols, strings.Join(fields[2:], " "))
	}
	return symbols
}

func (w *Worker) cacheStats(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	stats := w.CacheStore.Stats()
	return workers.Ok(map[string]interface{}{"enabled": stats.Enabled, "entries": stats.Entries, "directory": stats.Directory}), nil
}

func (w *Worker) cleanCache(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if err := w.CacheStore.Clean(); err != nil {
		return nil, pipeline.Fail(pipeline.StageCompile, fmt.Errorf("clean_cache: %w", err))
	}
	return workers.Ok(nil), nil
}

func combinedKey(paths []string, marker, version string) cache.Key {
	fps := make([]string, 0, len(paths))
	for _, p := range paths {
		if fp, err := base.FileContentFingerprint(p); err == nil {
			fps = append(fps, fp.String())
		} else {
			fps = append(fps, p)
		}
	}
	return cache.Key{
		SourceFingerprint: base.StringFingerprint(fps...),
		FlagFingerprint:   base.StringFingerprint(marker),
		ToolchainVersion:  version,
	}
}
