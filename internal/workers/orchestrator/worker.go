// Package orchestratorworker exposes internal/pipeline's orchestrated
// build over the daemon RPC surface, per spec.md §4.5.1's orchestrator
// callback list. It owns no cache of its own — it composes the three
// other workers' endpoints and an errorstore.Store for suggested fixes.
package orchestratorworker

import (
	"context"
	"sync"
	"time"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/daemon"
	"github.com/cxxforge/cxxforge/internal/errorstore"
	"github.com/cxxforge/cxxforge/internal/pipeline"
	"github.com/cxxforge/cxxforge/internal/workers"
)

type Worker struct {
	Endpoints pipeline.Endpoints
	ErrStore  *errorstore.Store

	mu      sync.Mutex
	watches map[string]context.CancelFunc
}

func New(eps pipeline.Endpoints, errStore *errorstore.Store) *Worker {
	return &Worker{Endpoints: eps, ErrStore: errStore, watches: map[string]context.CancelFunc{}}
}

func (w *Worker) Register(mux *daemon.Mux) {
	daemon.RegisterPing(mux)
	mux.Register("build_project", w.buildProject)
	mux.Register("quick_compile", w.quickCompile)
	mux.Register("incremental_build", w.incrementalBuild)
	mux.Register("clean_build", w.cleanBuild)
	mux.Register("watch_and_build", w.watchAndBuild)
	mux.Register("stop_watch", w.stopWatch)
	mux.Register("check_daemons", w.checkDaemons)
	mux.Register("get_stats", w.getStats)
}

func (w *Worker) buildProject(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StagePreflight, err)
	}
	opts := pipeline.BuildOptions{
		ForceDiscovery: workers.BoolArg(args, "force_discovery", false),
		ForceCompile:   workers.BoolArg(args, "force_compile", false),
		ProjectName:    workers.StringArg(args, "project_name", ""),
	}
	result, err := pipeline.BuildProject(ctx, w.Endpoints, w.ErrStore, root, opts)
	if err != nil {
		return nil, err
	}
	return resultToMap(result), nil
}

func (w *Worker) quickCompile(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StagePreflight, err)
	}
	result, err := pipeline.QuickCompile(ctx, w.Endpoints, w.ErrStore, root)
	if err != nil {
		return nil, err
	}
	return resultToMap(result), nil
}

func (w *Worker) incrementalBuild(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StagePreflight, err)
	}
	result, err := pipeline.IncrementalBuild(ctx, w.Endpoints, w.ErrStore, root)
	if err != nil {
		return nil, err
	}
	return resultToMap(result), nil
}

func (w *Worker) cleanBuild(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StagePreflight, err)
	}
	result, err := pipeline.CleanBuild(ctx, w.Endpoints, w.ErrStore, root)
	if err != nil {
		return nil, err
	}
	return resultToMap(result), nil
}

// watchAndBuild starts a background watch for root and returns immediately;
// each triggered build's outcome is only observable via logs and the
// project's own build/ir artifacts, since the daemon RPC contract is
// request-response rather than a stream, per spec.md §6.
func (w *Worker) watchAndBuild(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StagePreflight, err)
	}

	w.mu.Lock()
	if _, running := w.watches[root]; running {
		w.mu.Unlock()
		return workers.Ok(map[string]interface{}{"already_watching": true}), nil
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	w.watches[root] = cancel
	w.mu.Unlock()

	go func() {
		_ = pipeline.WatchAndBuild(watchCtx, w.Endpoints, w.ErrStore, root, func(result *pipeline.Result, err error) {
			if err != nil {
				base.LogWarning(pipeline.LogPipeline, "watch %s: build error: %v", root, err)
				return
			}
			if !result.Success {
				base.LogWarning(pipeline.LogPipeline, "watch %s: build failed at stage %s: %s", root, result.FailedStage, result.Error)
			}
		})
		w.mu.Lock()
		delete(w.watches, root)
		w.mu.Unlock()
	}()

	return workers.Ok(map[string]interface{}{"watching": true}), nil
}

func (w *Worker) stopWatch(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	root, err := workers.RequireString(args, "root")
	if err != nil {
		return nil, pipeline.Fail(pipeline.StagePreflight, err)
	}

	w.mu.Lock()
	cancel, running := w.watches[root]
	delete(w.watches, root)
	w.mu.Unlock()

	if !running {
		return workers.Ok(map[string]interface{}{"was_watching": false}), nil
	}
	cancel()
	return workers.Ok(map[string]interface{}{"was_watching": true}), nil
}

func (w *Worker) checkDaemons(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	status := pipeline.CheckDaemons(ctx, w.Endpoints)
	out := map[string]interface{}{}
	for name, alive := range status {
		out[name] = alive
	}
	return workers.Ok(out), nil
}

func (w *Worker) getStats(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	stats := map[string]interface{}{}
	for name, client := range map[string]pipeline.WorkerClient{
		"discovery": w.Endpoints.Discovery, "setup": w.Endpoints.Setup, "compilation": w.Endpoints.Compilation,
	} {
		res, err := client.Call(ctx, "cache_stats", nil)
		if err != nil {
			stats[name] = map[string]interface{}{"error": err.Error()}
			continue
		}
		stats[name] = res
	}
	w.mu.Lock()
	activeWatches := len(w.watches)
	w.mu.Unlock()
	stats["active_watches"] = activeWatches
	return workers.Ok(stats), nil
}

func resultToMap(r *pipeline.Result) map[string]interface{} {
	timings := map[string]interface{}{}
	for stage, d := range r.StageTimings {
		timings[string(stage)] = d.String()
	}
	fixes := make([]interface{}, 0, len(r.SuggestedFixes))
	for _, f := range r.SuggestedFixes {
		fixes = append(fixes, map[string]interface{}{
			"action":      f.Fix.Action,
			"description": f.Fix.Description,
			"similarity":  f.Similarity,
			"rank":        f.Rank,
		})
	}
	return map[string]interface{}{
		"success":         r.Success,
		"library_path":    r.LibraryPath,
		"elapsed":         r.Elapsed.String(),
		"elapsed_ms":      float64(r.Elapsed) / float64(time.Millisecond),
		"stage_timings":   timings,
		"failed_stage":    string(r.FailedStage),
		"error":           r.Error,
		"suggested_fixes": fixes,
	}
}
