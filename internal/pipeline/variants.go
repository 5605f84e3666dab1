// Variant builds implementing spec.md §4.5.3.
package pipeline

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/discovery"
	"github.com/cxxforge/cxxforge/internal/errorstore"
)

// QuickCompile skips discovery entirely and reuses the configuration
// document as-is, running from the compile step onward.
func QuickCompile(ctx context.Context, eps Endpoints, errStore *errorstore.Store, root string) (*Result, error) {
	return BuildProject(ctx, eps, errStore, root, BuildOptions{SkipDiscovery: true})
}

// IncrementalBuild runs the full pipeline with force_discovery=false,
// relying on mtime-based invalidation throughout Discovery and Compilation.
func IncrementalBuild(ctx context.Context, eps Endpoints, errStore *errorstore.Store, root string) (*Result, error) {
	return BuildProject(ctx, eps, errStore, root, BuildOptions{ForceDiscovery: false})
}

// CleanBuild purges every cache (Discovery's file/graph caches and
// Compilation's IR cache) before running a full build, per spec.md §4.5.3.
func CleanBuild(ctx context.Context, eps Endpoints, errStore *errorstore.Store, root string) (*Result, error) {
	if _, err := eps.Discovery.Call(ctx, "invalidate", map[string]interface{}{"root": root}); err != nil {
		base.LogWarning(LogPipeline, "clean_build: discovery invalidate failed: %v", err)
	}
	if _, err := eps.Compilation.Call(ctx, "clean_cache", nil); err != nil {
		base.LogWarning(LogPipeline, "clean_build: compilation clean_cache failed: %v", err)
	}
	return BuildProject(ctx, eps, errStore, root, BuildOptions{ForceDiscovery: true, ForceCompile: true})
}

// WatchAndBuild polls the project tree and fires an incremental build on
// any fingerprint change, terminating when ctx is canceled. fsnotify
// backs the common case; a plain mtime scan is the fallback when a native
// watch cannot be established (e.g. inotify instance limits), per spec.md
// §9's Design Notes keeping the contract filesystem-agnostic.
func WatchAndBuild(ctx context.Context, eps Endpoints, errStore *errorstore.Store, root string, onBuild func(*Result, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		base.LogWarning(LogPipeline, "watch: fsnotify unavailable (%v), falling back to mtime polling", err)
		return watchByPolling(ctx, eps, errStore, root, onBuild)
	}
	defer watcher.Close()

	if err := addWatchedDirs(watcher, root); err != nil {
		base.LogWarning(LogPipeline, "watch: failed to establish native watch (%v), falling back to mtime polling", err)
		return watchByPolling(ctx, eps, errStore, root, onBuild)
	}

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if !pending {
					pending = true
					debounce.Reset(200 * time.Millisecond)
				}
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			base.LogWarning(LogPipeline, "watch: fsnotify error: %v", werr)
		case <-debounce.C:
			pending = false
			result, err := IncrementalBuild(ctx, eps, errStore, root)
			onBuild(result, err)
		}
	}
}

func addWatchedDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || discovery.DefaultIgnore[name]) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// watchByPolling re-scans root on a fixed interval and triggers a build
// on the first poll and whenever a source or header fingerprint (mtime+size)
// differs from the previous poll's, used when fsnotify cannot be
// established.
func watchByPolling(ctx context.Context, eps Endpoints, errStore *errorstore.Store, root string, onBuild func(*Result, error)) error {
	var last *discovery.FileScan
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fresh, err := discovery.Scan(root)
			if err != nil {
				base.LogWarning(LogPipeline, "watch: poll scan failed: %v", err)
				continue
			}
			if last != nil && scansEqual(last, fresh) {
				continue
			}
			last = fresh
			result, err := IncrementalBuild(ctx, eps, errStore, root)
			onBuild(result, err)
		}
	}
}

func scansEqual(a, b *discovery.FileScan) bool {
	as := append(append(a.Sources(), a.CppHeaders...), a.CHeaders...)
	bs := append(append(b.Sources(), b.CppHeaders...), b.CHeaders...)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i].AbsPath != bs[i].AbsPath || as[i].Fingerprint != bs[i].Fingerprint {
			return false
		}
	}
	return true
}
