// Package pipeline composes the four workers into spec.md §4.5.2's
// orchestrated build and its §4.5.3 variants. Grounded on ppb's Build.go
// top-level sequencing (discover -> configure -> compile -> link -> done),
// generalized from ppb's single in-process call chain to RPC dispatch
// across daemon.Call.
package pipeline

import (
	"fmt"
	"strings"
)

// Stage names one step of the orchestrated build, carried in StageError and
// in Result.StageTimings.
type Stage string

const (
	StagePreflight     Stage = "preflight"
	StageDiscovery     Stage = "discovery"
	StageConfiguration Stage = "configuration"
	StageCompile       Stage = "compile"
	StageLink          Stage = "link"
	StageEmit          Stage = "emit"
	StageSymbols       Stage = "symbols"
)

// StageError wraps an error with the pipeline stage that produced it, plus
// the failing subprocess's command line and captured output where
// applicable — spec.md §7's error taxonomy realized as a Go type.
type StageError struct {
	Stage   Stage
	Err     error
	Command string
	Output  string
}

// stagePrefix is the "stage=...: " convention Envelope.Err carries across
// the RPC boundary, since gob cannot transport arbitrary error values.
// commandMarker and outputMarker delimit the optional command line and
// captured subprocess output appended after it, so the raw compiler
// diagnostic (spec.md §7's "captured output") survives the round trip
// through a plain string instead of being dropped at the RPC boundary.
const (
	stagePrefix   = "stage="
	commandMarker = " (command: "
	outputMarker  = "\n--- output ---\n"
)

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s%s: %v", stagePrefix, e.Stage, e.Err)
	if e.Command != "" {
		msg += fmt.Sprintf("%s%s)", commandMarker, e.Command)
	}
	if e.Output != "" {
		msg += outputMarker + e.Output
	}
	return msg
}

func (e *StageError) Unwrap() error { return e.Err }

// ParseStageError recovers a StageError from an Envelope.Err string built
// by Error() above. It returns ok=false for any string that doesn't follow
// the stage=... convention (e.g. a plain transport error). s need not start
// at the stage=... marker — callers that wrap the error text with their own
// prefix (e.g. "scan_files: stage=discovery: ...") can pass the whole
// string and ParseStageError locates the marker itself.
func ParseStageError(s string) (*StageError, bool) {
	start := strings.Index(s, stagePrefix)
	if start < 0 {
		return nil, false
	}
	rest := s[start+len(stagePrefix):]

	var output string
	if idx := strings.Index(rest, outputMarker); idx >= 0 {
		output = rest[idx+len(outputMarker):]
		rest = rest[:idx]
	}

	colon := strings.Index(rest, ": ")
	if colon < 0 {
		return nil, false
	}
	stage := Stage(rest[:colon])
	detail := rest[colon+2:]

	var command string
	if idx := strings.Index(detail, commandMarker); idx >= 0 {
		command = strings.TrimSuffix(detail[idx+len(commandMarker):], ")")
		detail = detail[:idx]
	}

	return &StageError{Stage: stage, Err: fmt.Errorf("%s", detail), Command: command, Output: output}, true
}

func Fail(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
