package jobqueue

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cxxforge/cxxforge/internal/base"
)

// Dispatcher sends one callback invocation to a named daemon and waits for
// its response — satisfied by a thin wrapper around internal/daemon.Call
// keyed by daemon name -> socket path.
type Dispatcher interface {
	Dispatch(ctx context.Context, daemonName, callback string, args map[string]interface{}) (map[string]interface{}, error)
}

// ConfigWriter merges a job's result into the configuration document at a
// dotted target-section path, per spec.md §4.5.4's "Result write-back"
// (implemented by Setup's update callback).
type ConfigWriter interface {
	WriteSection(ctx context.Context, targetSection string, result map[string]interface{}) error
}

// Manager holds the id->job mapping and drives spec.md §4.5.4's scheduling
// loop to completion. Grounded on ppb's action/ActionGraph.go BuildGraph
// walk (dependency-gated readiness, halt-on-first-failure) adapted from an
// in-process DAG walk to RPC dispatch against the four daemons.
type Manager struct {
	Config QueueConfig
	jobs   []*Job
	byID   map[string]*Job
	state  string
}

func NewManager(cfg QueueConfig, jobs []*Job, statePath string) *Manager {
	byID := map[string]*Job{}
	for _, j := range jobs {
		byID[j.ID] = j
	}
	return &Manager{Config: cfg, jobs: jobs, byID: byID, state: statePath}
}

// Load reads a job document at path and merges any persisted state so a
// resumed queue skips jobs already completed. A relative persistence path
// is resolved against the job document's directory.
func Load(path string) (*Manager, error) {
	cfg, jobs, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	statePath := cfg.Persistence
	if statePath != "" && !filepath.IsAbs(statePath) {
		statePath = filepath.Join(filepath.Dir(path), statePath)
	}
	if err := MergeState(statePath, jobs); err != nil {
		return nil, err
	}
	return NewManager(cfg, jobs, statePath), nil
}

func (m *Manager) Jobs() []*Job { return m.jobs }

func (m *Manager) Job(id string) (*Job, bool) {
	j, ok := m.byID[id]
	return j, ok
}

// dependenciesSatisfied reports whether every one of j's dependencies has
// completed.
func (m *Manager) dependenciesSatisfied(j *Job) bool {
	for _, dep := range j.DependsOn {
		d, ok := m.byID[dep]
		if !ok || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// markReady transitions every pending job whose dependencies are all
// completed into the ready state.
func (m *Manager) markReady() []*Job {
	var ready []*Job
	for _, j := range m.jobs {
		if j.Status == StatusPending && m.dependenciesSatisfied(j) {
			if err := j.Advance(StatusReady); err != nil {
				base.LogPanicIfFailed(LogJobQueue, err)
			}
			ready = append(ready, j)
		}
	}
	return sortedByPriority(ready)
}

// failDependents marks every job transitively depending on failed (directly
// or indirectly) as failed, per spec.md §4.5.4's failure propagation.
func (m *Manager) failDependents(failedID string) {
	changed := true
	for changed {
		changed = false
		for _, j := range m.jobs {
			if j.IsTerminal() {
				continue
			}
			for _, dep := range j.DependsOn {
				if dep == failedID || m.byID[dep].Status == StatusFailed {
					if j.Status != StatusFailed {
						j.Status = StatusFailed
						j.Error = fmt.Sprintf("dependency %q failed", dep)
						changed = true
					}
					break
				}
			}
		}
	}
}

// Run drives the queue to completion: each step selects ready jobs sorted
// by priority, dispatches them one at a time (synchronous at the manager
// level per spec.md §4.5.4), writes results back via writer, and persists
// state after each job completes or fails. Run halts and returns the first
// failure.
func (m *Manager) Run(ctx context.Context, dispatcher Dispatcher, writer ConfigWriter) error {
	for {
		ready := m.markReady()
		if len(ready) == 0 {
			break
		}

		for _, j := range ready {
			if err := j.Advance(StatusRunning); err != nil {
				return err
			}
			base.LogInfo(LogJobQueue, "dispatching job %s -> %s.%s", j.ID, j.Daemon, j.Callback)

			result, err := dispatcher.Dispatch(ctx, j.Daemon, j.Callback, j.Args)
			if err != nil {
				j.Status = StatusFailed
				j.Error = err.Error()
				m.failDependents(j.ID)
				_ = SaveState(m.state, m.jobs)
				return fmt.Errorf("jobqueue: job %s failed: %w", j.ID, err)
			}

			j.Result = result
			if err := j.Advance(StatusCompleted); err != nil {
				return err
			}

			if j.TargetSection != "" && writer != nil {
				if err := writer.WriteSection(ctx, j.TargetSection, result); err != nil {
					return fmt.Errorf("jobqueue: write-back for job %s: %w", j.ID, err)
				}
			}

			if err := SaveState(m.state, m.jobs); err != nil {
				base.LogWarning(LogJobQueue, "failed to persist job state: %v", err)
			}
		}
	}

	for _, j := range m.jobs {
		if !j.IsTerminal() {
			return fmt.Errorf("jobqueue: job %s never became ready (unsatisfiable or cyclic dependency)", j.ID)
		}
	}
	return nil
}
