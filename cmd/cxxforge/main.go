// Command cxxforge is the minimal external-collaborator CLI named in
// spec.md §6: it dials the orchestrator's Unix-domain socket and prints
// back whatever mapping the daemon returns. Kept intentionally thin —
// the CLI front-end itself is out of scope; cxxforged's orchestrator
// worker does all the real work.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cxxforge/cxxforge/internal/daemon"
)

func main() {
	var (
		socketDir = flag.String("socket-dir", defaultSocketDir(), "directory holding the orchestrator's Unix-domain socket")
		timeout   = flag.Duration("timeout", 5*time.Minute, "RPC timeout")
	)
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	root, err := os.Getwd()
	if err != nil {
		fatal("getwd: %v", err)
	}

	cmd := args[0]
	rest := args[1:]
	callback, callArgs, err := translate(cmd, rest, root)
	if err != nil {
		fatal("%v", err)
	}

	socketPath := filepath.Join(*socketDir, "orchestrator.sock")
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := daemon.Call(ctx, socketPath, callback, callArgs, *timeout)
	if err != nil {
		fatal("%v", err)
	}
	printResult(result)

	if success, ok := result["success"].(bool); ok && !success {
		os.Exit(1)
	}
}

func translate(cmd string, rest []string, root string) (string, map[string]interface{}, error) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	switch cmd {
	case "build":
		incremental := fs.Bool("incremental", false, "skip forced re-discovery")
		clean := fs.Bool("clean", false, "purge caches before building")
		forceCompile := fs.Bool("force-compile", false, "recompile every translation unit")
		name := fs.String("name", filepath.Base(root), "project name")
		fs.Parse(rest)
		switch {
		case *clean:
			return "clean_build", map[string]interface{}{"root": root}, nil
		case *incremental:
			return "incremental_build", map[string]interface{}{"root": root}, nil
		default:
			return "build_project", map[string]interface{}{
				"root": root, "project_name": *name, "force_compile": *forceCompile,
			}, nil
		}
	case "compile":
		quick := fs.Bool("quick", true, "skip discovery and reuse the existing configuration")
		fs.Parse(rest)
		if *quick {
			return "quick_compile", map[string]interface{}{"root": root}, nil
		}
		return "build_project", map[string]interface{}{"root": root}, nil
	case "watch":
		fs.Parse(rest)
		return "watch_and_build", map[string]interface{}{"root": root}, nil
	case "status":
		fs.Parse(rest)
		return "check_daemons", nil, nil
	case "stats":
		fs.Parse(rest)
		return "get_stats", nil, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q (want build|compile|watch|status|stats)", cmd)
	}
}

func printResult(result map[string]interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func defaultSocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "cxxforge")
	}
	return filepath.Join(os.TempDir(), "cxxforge")
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: cxxforge <command> [flags]

commands:
  build [--incremental|--clean] [--force-compile] [--name NAME]
  compile [--quick]
  watch
  status
  stats`)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "cxxforge: "+format+"\n", args...)
	os.Exit(1)
}
