package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cxxforge/cxxforge/internal/errorstore"
)

type scriptedWorker struct {
	responses map[string]map[string]interface{}
	fail      map[string]error
	calls     []string
}

func (w *scriptedWorker) Call(ctx context.Context, callback string, args map[string]interface{}) (map[string]interface{}, error) {
	w.calls = append(w.calls, callback)
	if w.fail != nil {
		if err, ok := w.fail[callback]; ok {
			return nil, err
		}
	}
	if w.responses != nil {
		if r, ok := w.responses[callback]; ok {
			return r, nil
		}
	}
	return map[string]interface{}{"success": true}, nil
}

func happyEndpoints() (Endpoints, *scriptedWorker, *scriptedWorker, *scriptedWorker) {
	discoveryW := &scriptedWorker{responses: map[string]map[string]interface{}{
		"scan_files":  {"success": true, "include_dirs": []interface{}{"/proj/include"}},
		"build_graph": {"success": true},
	}}
	setupW := &scriptedWorker{responses: map[string]map[string]interface{}{
		"generate_config": {"success": true, "library_name": "hello"},
	}}
	compilationW := &scriptedWorker{responses: map[string]map[string]interface{}{
		"compile_unit": {"success": true, "ir_paths": []interface{}{"/proj/build/ir/hello.ll"}},
		"link_ir":      {"success": true, "linked_path": "/proj/build/ir/linked.ll"},
		"optimize_ir":  {"success": true, "optimized_path": "/proj/build/ir/opt.ll"},
		"emit_library": {"success": true, "library_path": "/proj/julia/libhello.so"},
		"extract_symbols": {"success": true, "symbols": []interface{}{"add"}},
	}}
	eps := Endpoints{Discovery: discoveryW, Setup: setupW, Compilation: compilationW}
	return eps, discoveryW, setupW, compilationW
}

func TestBuildProjectHappyPath(t *testing.T) {
	eps, _, _, _ := happyEndpoints()
	result, err := BuildProject(context.Background(), eps, nil, "/proj", BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got failure at stage %s: %s", result.FailedStage, result.Error)
	}
	if result.LibraryPath != "/proj/julia/libhello.so" {
		t.Fatalf("unexpected library path: %s", result.LibraryPath)
	}
	for _, stage := range []Stage{StageDiscovery, StageConfiguration, StageCompile, StageLink, StageEmit, StageSymbols} {
		if _, ok := result.StageTimings[stage]; !ok {
			t.Fatalf("expected a timing entry for stage %s", stage)
		}
	}
}

func TestBuildProjectPreflightFailure(t *testing.T) {
	eps, discoveryW, _, _ := happyEndpoints()
	discoveryW.fail = map[string]error{"ping": fmt.Errorf("no such file or directory")}

	result, err := BuildProject(context.Background(), eps, nil, "/proj", BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected preflight to fail the build")
	}
	if result.FailedStage != StagePreflight {
		t.Fatalf("expected failed stage preflight, got %s", result.FailedStage)
	}
}

func TestBuildProjectSkipsDiscoveryOnQuickCompile(t *testing.T) {
	eps, discoveryW, _, _ := happyEndpoints()
	_, err := QuickCompile(context.Background(), eps, nil, "/proj")
	if err != nil {
		t.Fatal(err)
	}
	for _, call := range discoveryW.calls {
		if call == "scan_files" || call == "build_graph" {
			t.Fatalf("quick_compile must not call discovery, got %v", discoveryW.calls)
		}
	}
}

func TestBuildProjectCompileFailureShortCircuits(t *testing.T) {
	eps, _, _, compilationW := happyEndpoints()
	compilationW.fail = map[string]error{"compile_unit": fmt.Errorf("clang++: error: 'missing.h' file not found")}

	result, err := BuildProject(context.Background(), eps, nil, "/proj", BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected compile failure to fail the build")
	}
	if result.FailedStage != StageCompile {
		t.Fatalf("expected failed stage compile, got %s", result.FailedStage)
	}
	for _, call := range compilationW.calls {
		if call == "link_ir" || call == "emit_library" {
			t.Fatalf("a compile failure must short-circuit later stages, got call to %s", call)
		}
	}
}

// TestBuildProjectMatchesSuggestedFixesAgainstCapturedOutput guards against
// the diagnostic text fed to the Error Store being the generic
// "exit status 1 (command: ...)" wrapper instead of the actual compiler
// output: only the latter can ever match the bootstrap-seeded patterns.
func TestBuildProjectMatchesSuggestedFixesAgainstCapturedOutput(t *testing.T) {
	store, err := errorstore.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	eps, _, _, compilationW := happyEndpoints()
	compilationW.fail = map[string]error{"emit_library": &StageError{
		Stage:   StageEmit,
		Err:     errors.New("exit status 1"),
		Command: "clang++ -shared a.ll -o liba.so",
		Output:  "undefined reference to `pthread_create'",
	}}

	result, err := BuildProject(context.Background(), eps, store, "/proj", BuildOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected emit_library failure to fail the build")
	}
	if len(result.SuggestedFixes) == 0 {
		t.Fatal("expected a suggested fix matched against the captured compiler output, got none")
	}
	if got := result.SuggestedFixes[0].Fix.Action; got != "add library to link list: pthread" {
		t.Fatalf("expected the bootstrap-seeded pthread fix to rank first, got %q", got)
	}
}
