package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cxxforge/cxxforge/internal/daemon"
)

// WorkerClient is the orchestrator's view of a single worker: call a named
// callback, wait for its response mapping.
type WorkerClient interface {
	Call(ctx context.Context, callback string, args map[string]interface{}) (map[string]interface{}, error)
}

// DaemonClient is a WorkerClient backed by a Unix-domain socket, per
// spec.md §6's worker RPC surface.
type DaemonClient struct {
	SocketPath string
	Timeout    time.Duration
}

func (c DaemonClient) Call(ctx context.Context, callback string, args map[string]interface{}) (map[string]interface{}, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return daemon.Call(ctx, c.SocketPath, callback, args, timeout)
}

// Endpoints names the three workers the orchestrator composes. It owns no
// caches itself, per spec.md §4.5.1's topology table.
type Endpoints struct {
	Discovery   WorkerClient
	Setup       WorkerClient
	Compilation WorkerClient
}

// CheckDaemons pings every endpoint concurrently and reports per-worker
// liveness, implementing the orchestrator's check_daemons callback.
func CheckDaemons(ctx context.Context, eps Endpoints) map[string]bool {
	result := map[string]bool{}
	var mu sync.Mutex
	var g errgroup.Group
	for name, client := range map[string]WorkerClient{
		"discovery": eps.Discovery, "setup": eps.Setup, "compilation": eps.Compilation,
	} {
		name, client := name, client
		g.Go(func() error {
			_, err := client.Call(ctx, daemon.Ping, nil)
			mu.Lock()
			result[name] = err == nil
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return result
}

func preflight(ctx context.Context, eps Endpoints) *StageError {
	for worker, alive := range CheckDaemons(ctx, eps) {
		if !alive {
			return Fail(StagePreflight, fmt.Errorf("worker %q is not responding", worker))
		}
	}
	return nil
}

// ConfigWriter adapts Setup's update callback to jobqueue.Manager's
// ConfigWriter interface (satisfied structurally; internal/jobqueue never
// imports internal/pipeline), implementing spec.md §4.5.4's result
// write-back: a dotted target_section path splits into a stage section
// name plus a single nested field holding the job's whole result.
type ConfigWriter struct {
	Root  string
	Setup WorkerClient
}

func (w ConfigWriter) WriteSection(ctx context.Context, targetSection string, result map[string]interface{}) error {
	section, field := targetSection, ""
	if idx := strings.IndexByte(targetSection, '.'); idx >= 0 {
		section, field = targetSection[:idx], targetSection[idx+1:]
	}

	fields := result
	if field != "" {
		fields = map[string]interface{}{field: result}
	}

	_, err := w.Setup.Call(ctx, "update", map[string]interface{}{
		"root":    w.Root,
		"section": section,
		"fields":  fields,
	})
	return err
}
