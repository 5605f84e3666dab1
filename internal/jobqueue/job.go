// Package jobqueue implements spec.md §4.5.4's declarative job document: a
// TOML array-of-tables describing queued worker callbacks, their priority
// and dependency ordering, and result write-back into the configuration
// document. Grounded on ppb's action/ActionGraph.go (dependency-ordered
// task scheduling) generalized from ppb's in-process action graph to
// cross-process RPC dispatch via internal/daemon, and on BurntSushi/toml
// for the [[jobs]] array-of-tables syntax spec.md §6 names directly.
package jobqueue

import (
	"fmt"

	"github.com/cxxforge/cxxforge/internal/base"
)

var LogJobQueue = base.NewLogCategory("JobQueue")

// Status is a job's lifecycle state. It only ever moves forward, per
// spec.md §4.5.4's invariant: pending -> ready -> running -> {completed|failed}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// rank orders statuses so Advance can assert monotonic forward movement.
var rank = map[Status]int{
	StatusPending:   0,
	StatusReady:     1,
	StatusRunning:   2,
	StatusCompleted: 3,
	StatusFailed:    3,
}

// Job is one queued worker callback invocation.
type Job struct {
	ID            string
	Type          string
	Daemon        string
	Priority      int
	Status        Status
	DependsOn     []string
	TargetSection string
	Callback      string
	Args          map[string]interface{}
	Result        map[string]interface{}
	Error         string
}

// Advance transitions the job to next, refusing any move that would
// regress its lifecycle rank.
func (j *Job) Advance(next Status) error {
	if rank[next] < rank[j.Status] {
		return fmt.Errorf("jobqueue: job %s cannot regress from %s to %s", j.ID, j.Status, next)
	}
	j.Status = next
	return nil
}

func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
