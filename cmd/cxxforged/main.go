// Command cxxforged is the worker daemon binary: a -role flag selects which
// of the four long-lived workers this process runs, per spec.md §4.5.1's
// worker topology table. Grounded on ppb's cmd/ppb_worker/ppb_worker.go
// (role-selected single binary), generalized from its in-process RPC
// dispatch to internal/daemon's Unix-socket server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cxxforge/cxxforge/internal/base"
	"github.com/cxxforge/cxxforge/internal/cache"
	"github.com/cxxforge/cxxforge/internal/daemon"
	"github.com/cxxforge/cxxforge/internal/errorstore"
	"github.com/cxxforge/cxxforge/internal/pipeline"
	"github.com/cxxforge/cxxforge/internal/toolchain"
	compilationworker "github.com/cxxforge/cxxforge/internal/workers/compilation"
	discoveryworker "github.com/cxxforge/cxxforge/internal/workers/discovery"
	orchestratorworker "github.com/cxxforge/cxxforge/internal/workers/orchestrator"
	setupworker "github.com/cxxforge/cxxforge/internal/workers/setup"
)

var LogMain = base.NewLogCategory("cxxforged")

func main() {
	var (
		role           = flag.String("role", "", "worker role: discovery|setup|compilation|orchestrator")
		socketDir      = flag.String("socket-dir", defaultSocketDir(), "directory holding the four workers' Unix-domain sockets")
		cacheDir       = flag.String("cache-dir", "", "Compilation worker's IR cache directory (defaults under socket-dir)")
		errorStorePath = flag.String("error-store", "", "orchestrator's SQLite error-pattern store path (defaults under socket-dir)")
		cacheEnabled   = flag.Bool("cache", true, "enable the Compilation worker's IR cache")
		parallelism    = flag.Int("parallel", 0, "Compilation worker's thread-pool size (0 = NumCPU)")
		timeoutSeconds = flag.Int("rpc-timeout", 30, "per-call RPC timeout in seconds, used by the orchestrator's worker clients")
		verbose        = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	if *verbose {
		base.SetGlobalLogLevel(base.LOG_VERBOSE)
	}

	if err := os.MkdirAll(*socketDir, 0o755); err != nil {
		fatal("mkdir socket-dir %s: %v", *socketDir, err)
	}
	if *cacheDir == "" {
		*cacheDir = filepath.Join(*socketDir, "ir-cache")
	}
	if *errorStorePath == "" {
		*errorStorePath = filepath.Join(*socketDir, "errors.sqlite")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		base.LogInfo(LogMain, "shutting down")
		cancel()
	}()

	mux := daemon.NewMux()
	probeOpts := toolchain.ProbeOptions{}

	switch *role {
	case "discovery":
		discoveryworker.New(probeOpts).Register(mux)
	case "setup":
		setupworker.New().Register(mux)
	case "compilation":
		store, err := cache.Open(*cacheDir, *cacheEnabled)
		if err != nil {
			fatal("open cache: %v", err)
		}
		defer store.Close()
		compilationworker.New(store, probeOpts, *parallelism).Register(mux)
	case "orchestrator":
		store, err := errorstore.Open(*errorStorePath)
		if err != nil {
			fatal("open error store: %v", err)
		}
		if err := store.Bootstrap(); err != nil {
			base.LogWarning(LogMain, "error store bootstrap failed: %v", err)
		}
		defer store.Close()
		timeout := time.Duration(*timeoutSeconds) * time.Second
		eps := pipeline.Endpoints{
			Discovery:   pipeline.DaemonClient{SocketPath: socketPath(*socketDir, "discovery"), Timeout: timeout},
			Setup:       pipeline.DaemonClient{SocketPath: socketPath(*socketDir, "setup"), Timeout: timeout},
			Compilation: pipeline.DaemonClient{SocketPath: socketPath(*socketDir, "compilation"), Timeout: timeout},
		}
		orchestratorworker.New(eps, store).Register(mux)
	default:
		fatal("unknown -role %q (want discovery|setup|compilation|orchestrator)", *role)
	}

	base.LogInfo(LogMain, "starting %s worker", *role)
	if err := daemon.Serve(ctx, socketPath(*socketDir, *role), mux); err != nil {
		fatal("serve: %v", err)
	}
}

func socketPath(dir, role string) string {
	return filepath.Join(dir, role+".sock")
}

func defaultSocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "cxxforge")
	}
	return filepath.Join(os.TempDir(), "cxxforge")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "cxxforged: "+format+"\n", args...)
	os.Exit(1)
}
