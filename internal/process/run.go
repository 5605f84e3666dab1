package process

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/cxxforge/cxxforge/internal/base"
)

var LogProcess = base.NewLogCategory("Process")

// Result carries everything the caller needs to turn a failed invocation
// into a diagnostic for the error store.
type Result struct {
	ExitCode int
	Output   []byte // combined stdout+stderr
	TimedOut bool
}

type Options struct {
	WorkingDir string
	Env        *Environment
	Timeout    time.Duration // zero means no timeout
}

// Run executes executable with arguments under the given scoped environment.
// The environment overlay only ever affects the child process — nothing
// about the calling process's own environment is touched, so there is
// nothing to "restore" on the Go side; spec.md's restoration guarantee is
// upheld for free by os/exec's process-local Env.
func Run(ctx context.Context, executable string, args []string, opts Options) (Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, executable, args...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	if opts.Env != nil {
		cmd.Env = opts.Env.Export()
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	base.LogVerbose(LogProcess, "run %s %v", executable, args)

	err := cmd.Run()
	result := Result{Output: combined.Bytes()}

	if ctx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		return result, ctx.Err()
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}
