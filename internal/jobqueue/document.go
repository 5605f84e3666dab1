package jobqueue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
)

// wireJob/wireQueue/wireDocument mirror spec.md §6's job file format
// exactly: a top-level job_queue section plus a jobs array-of-tables.
type wireJob struct {
	ID            string                 `toml:"id"`
	Type          string                 `toml:"type"`
	Daemon        string                 `toml:"daemon"`
	Priority      int                    `toml:"priority"`
	Status        string                 `toml:"status"`
	DependsOn     []string               `toml:"depends_on"`
	TargetSection string                 `toml:"target_section"`
	Callback      string                 `toml:"callback"`
	Args          map[string]interface{} `toml:"args"`
	Result        map[string]interface{} `toml:"result"`
	Error         string                 `toml:"error"`
}

type wireQueue struct {
	Enabled     bool   `toml:"enabled"`
	AutoExecute bool   `toml:"auto_execute"`
	Persistence string `toml:"persistence"`
}

type wireDocument struct {
	JobQueue wireQueue `toml:"job_queue"`
	Jobs     []wireJob `toml:"jobs"`
}

// QueueConfig is the [job_queue] table.
type QueueConfig struct {
	Enabled     bool
	AutoExecute bool
	Persistence string // path to the state file merged in on load (relative to the job document), written after each job completes or fails
}

func toJob(w wireJob) *Job {
	status := Status(w.Status)
	if status == "" {
		status = StatusPending
	}
	return &Job{
		ID:            w.ID,
		Type:          w.Type,
		Daemon:        w.Daemon,
		Priority:      w.Priority,
		Status:        status,
		DependsOn:     w.DependsOn,
		TargetSection: w.TargetSection,
		Callback:      w.Callback,
		Args:          w.Args,
		Result:        w.Result,
		Error:         w.Error,
	}
}

func fromJob(j *Job) wireJob {
	return wireJob{
		ID:            j.ID,
		Type:          j.Type,
		Daemon:        j.Daemon,
		Priority:      j.Priority,
		Status:        string(j.Status),
		DependsOn:     j.DependsOn,
		TargetSection: j.TargetSection,
		Callback:      j.Callback,
		Args:          j.Args,
		Result:        j.Result,
		Error:         j.Error,
	}
}

// LoadDocument parses a job document at path, producing an ordered job list
// and queue config. A missing depends_on id is rejected — a malformed
// document should fail fast rather than silently never schedule a job.
func LoadDocument(path string) (QueueConfig, []*Job, error) {
	var wire wireDocument
	if _, err := toml.DecodeFile(path, &wire); err != nil {
		return QueueConfig{}, nil, fmt.Errorf("jobqueue: parse %s: %w", path, err)
	}

	ids := map[string]bool{}
	jobs := make([]*Job, 0, len(wire.Jobs))
	for _, w := range wire.Jobs {
		jobs = append(jobs, toJob(w))
		ids[w.ID] = true
	}
	for _, j := range jobs {
		for _, dep := range j.DependsOn {
			if !ids[dep] {
				return QueueConfig{}, nil, fmt.Errorf("jobqueue: job %s depends_on unknown job %q", j.ID, dep)
			}
		}
	}

	cfg := QueueConfig{
		Enabled:     wire.JobQueue.Enabled,
		AutoExecute: wire.JobQueue.AutoExecute,
		Persistence: wire.JobQueue.Persistence,
	}
	return cfg, jobs, nil
}

// SaveState atomically persists the jobs' current status/result/error to
// path so a resumed queue can skip jobs already completed, per spec.md
// §4.5.4's "Persisted state ... is merged in" loading behavior.
func SaveState(path string, jobs []*Job) error {
	if path == "" {
		return nil
	}
	ordered := make([]wireJob, 0, len(jobs))
	for _, j := range jobs {
		ordered = append(ordered, fromJob(j))
	}
	out := wireDocument{Jobs: ordered}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("jobqueue: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("jobqueue: create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := toml.NewEncoder(tmp).Encode(out); err != nil {
		tmp.Close()
		return fmt.Errorf("jobqueue: encode state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("jobqueue: fsync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// MergeState loads path (if present) and applies each persisted job's
// status/result/error onto the matching job by id, so resuming a queue
// skips jobs already marked completed.
func MergeState(path string, jobs []*Job) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("jobqueue: read state %s: %w", path, err)
	}

	var wire wireDocument
	if _, err := toml.Decode(string(data), &wire); err != nil {
		return fmt.Errorf("jobqueue: parse state %s: %w", path, err)
	}

	byID := map[string]*Job{}
	for _, j := range jobs {
		byID[j.ID] = j
	}
	for _, w := range wire.Jobs {
		if j, ok := byID[w.ID]; ok {
			j.Status = Status(w.Status)
			j.Result = w.Result
			j.Error = w.Error
		}
	}
	return nil
}

// sortedByPriority returns jobs sorted by descending priority, stable so
// equal-priority jobs keep their document order.
func sortedByPriority(jobs []*Job) []*Job {
	out := append([]*Job{}, jobs...)
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Priority > out[k].Priority
	})
	return out
}
