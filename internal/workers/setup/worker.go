// Package setupworker adapts internal/config into the Setup daemon's RPC
// surface: materializing the project's output directories and acting as
// the configuration document's sole writer, per spec.md §5's shared-
// resource policy ("other workers mutate by sending update RPCs to
// Setup"). Grounded on ppb's utils/Persistent.go save conventions.
package setupworker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/config"
	"github.com/cxxforge/cxxforge/internal/daemon"
	"github.com/cxxforge/cxxforge/internal/pipeline"
	"github.com/cxxforge/cxxforge/internal/workers"
)

var LogSetupWorker = base.NewLogCategory("SetupWorker")

// Worker owns the configuration document for the process lifetime. A mutex
// serializes load/modify/save across concurrent connections — spec.md §5
// names Setup the configuration document's sole writer.
type Worker struct {
	mu sync.Mutex
}

func New() *Worker { return &Worker{} }

func (w *Worker) Register(mux *daemon.Mux) {
	daemon.RegisterPing(mux)
	mux.Register("create_structure", w.createStructure)
	mux.Register("generate_config", w.generateConfig)
	mux.Register("validate", w.validate)
	mux.Register("cache_stats", w.cacheStats)
	mux.Register("update", w.update)
}

func configPath(root string) string {
	return filepath.Join(root, ".cxxforge", "config.toml")
}

func (w *Worker) createStructure(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}

	dirs := []string{
		filepath.Join(root, "build"),
		filepath.Join(root, "build", "ir"),
		filepath.Join(root, "julia"),
		filepath.Join(root, ".cxxforge"),
		filepath.Join(root, ".cxxforge", "cache"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, pipeline.Fail(pipeline.StageConfiguration, fmt.Errorf("create_structure: mkdir %s: %w", dir, err))
		}
	}
	return workers.Ok(map[string]interface{}{"created": dirs}), nil
}

// generateConfig loads (or creates) the configuration document, ensures
// output directories exist, auto-populates required keys, and saves, per
// spec.md §4.5.2 step 3.
func (w *Worker) generateConfig(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}
	if _, err := w.createStructure(ctx, args); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	path := configPath(root)
	doc, err := config.Load(path)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, fmt.Errorf("generate_config: %w", err))
	}

	project := config.GetProject(doc)
	if project.Root == "" {
		project.Root = root
	}
	if project.Name == "" {
		project.Name = workers.StringArg(args, "project_name", filepath.Base(root))
	}
	config.SetProject(doc, project)

	binary := config.GetBinary(doc)
	if binary.LibraryName == "" {
		binary.LibraryName = project.Name
		config.SetBinary(doc, binary)
	}

	if disc := workers.MapArg(args, "discovery"); disc != nil {
		includeDirs := workers.StringSliceArg(disc, "include_dirs")
		existing := config.GetDiscovery(doc)
		merged := mergeUnique(existing.IncludeDirs, includeDirs)
		config.SetDiscoveryResults(doc, merged, disc["files"], disc["graph"])
	}

	if err := config.Save(doc, path); err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, fmt.Errorf("generate_config: save: %w", err))
	}

	return workers.Ok(flatten(doc)), nil
}

func mergeUnique(a, b []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// flatten projects a document's typed sections into the response mapping
// downstream workers read (compile flags, link libraries, cache settings).
func flatten(doc *config.Document) map[string]interface{} {
	project := config.GetProject(doc)
	compile := config.GetCompile(doc)
	link := config.GetLink(doc)
	binary := config.GetBinary(doc)
	symbols := config.GetSymbols(doc)
	cache := config.GetCache(doc)
	return map[string]interface{}{
		"project_name":   project.Name,
		"project_root":   project.Root,
		"compile_flags":  compile.Flags,
		"output_dir":     compile.OutputDir,
		"parallel":       compile.Parallel,
		"opt_level":      link.OptLevel,
		"lto":            link.LTO,
		"library_name":   binary.LibraryName,
		"link_libraries": binary.LinkLibraries,
		"demangle":       symbols.Demangle,
		"cache_enabled":  cache.Enabled,
		"cache_dir":      cache.Directory,
	}
}

func (w *Worker) validate(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}

	w.mu.Lock()
	doc, err := config.Load(configPath(root))
	w.mu.Unlock()
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}

	var missing []string
	project := config.GetProject(doc)
	if project.Name == "" {
		missing = append(missing, "project.name")
	}
	binary := config.GetBinary(doc)
	if binary.LibraryName == "" {
		missing = append(missing, "binary.library_name")
	}

	if len(missing) > 0 {
		return workers.Ok(map[string]interface{}{"success": false, "missing": missing}), nil
	}
	return workers.Ok(nil), nil
}

func (w *Worker) cacheStats(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	return workers.Ok(map[string]interface{}{"owns_cache": false}), nil
}

// update merges results into the named stage's section and saves — the
// single RPC every other worker sends Setup to mutate the configuration
// document, per spec.md §5.
func (w *Worker) update(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}
	section, err := workers.RequireString(args, "section")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}
	fields := workers.MapArg(args, "fields")

	w.mu.Lock()
	defer w.mu.Unlock()

	path := configPath(root)
	doc, err := config.Load(path)
	if err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}
	config.Update(doc, config.StageName(section), fields)
	if err := config.Save(doc, path); err != nil {
		return nil, pipeline.Fail(pipeline.StageConfiguration, err)
	}
	base.LogVerbose(LogSetupWorker, "updated section %s for %s", section, root)
	return workers.Ok(nil), nil
}
