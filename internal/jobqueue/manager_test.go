package jobqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleDoc = `
[job_queue]
enabled = true
auto_execute = true
persistence = "state.toml"

[[jobs]]
id = "scan"
daemon = "discovery"
priority = 10
callback = "scan_files"
target_section = "discovery.files"
[jobs.args]
root = "."

[[jobs]]
id = "compile"
daemon = "compilation"
priority = 5
callback = "compile_unit"
depends_on = ["scan"]
target_section = "compile.units"
`

type fakeDispatcher struct {
	calls []string
	fail  string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, daemonName, callback string, args map[string]interface{}) (map[string]interface{}, error) {
	f.calls = append(f.calls, daemonName+"."+callback)
	if daemonName == f.fail {
		return nil, errDispatchFixture
	}
	return map[string]interface{}{"ok": true}, nil
}

type fakeWriter struct {
	writes map[string]map[string]interface{}
}

func (f *fakeWriter) WriteSection(ctx context.Context, targetSection string, result map[string]interface{}) error {
	if f.writes == nil {
		f.writes = map[string]map[string]interface{}{}
	}
	f.writes[targetSection] = result
	return nil
}

type fixtureErr string

func (e fixtureErr) Error() string { return string(e) }

var errDispatchFixture = fixtureErr("dispatch failed")

func writeDoc(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOrdersAndValidatesDependencies(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	mgr, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(mgr.Jobs()) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(mgr.Jobs()))
	}
}

func TestLoadRejectsUnknownDependency(t *testing.T) {
	doc := `
[job_queue]
enabled = true

[[jobs]]
id = "a"
daemon = "discovery"
callback = "scan_files"
depends_on = ["does_not_exist"]
`
	path := writeDoc(t, doc)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown depends_on id")
	}
}

func TestRunDispatchesInDependencyAndPriorityOrder(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	// relocate persistence alongside the job doc
	mgr, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	mgr.state = filepath.Join(filepath.Dir(path), "state.toml")

	dispatcher := &fakeDispatcher{}
	writer := &fakeWriter{}

	if err := mgr.Run(context.Background(), dispatcher, writer); err != nil {
		t.Fatal(err)
	}

	if len(dispatcher.calls) != 2 {
		t.Fatalf("expected 2 dispatches, got %v", dispatcher.calls)
	}
	if dispatcher.calls[0] != "discovery.scan_files" {
		t.Fatalf("expected scan to dispatch before compile, got %v", dispatcher.calls)
	}
	if dispatcher.calls[1] != "compilation.compile_unit" {
		t.Fatalf("expected compile to dispatch second, got %v", dispatcher.calls)
	}

	for _, j := range mgr.Jobs() {
		if j.Status != StatusCompleted {
			t.Fatalf("expected job %s to be completed, got %s", j.ID, j.Status)
		}
	}
	if writer.writes["discovery.files"] == nil {
		t.Fatal("expected discovery.files write-back")
	}
	if writer.writes["compile.units"] == nil {
		t.Fatal("expected compile.units write-back")
	}
}

func TestRunPropagatesFailureToDependents(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	mgr, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	mgr.state = filepath.Join(filepath.Dir(path), "state.toml")

	dispatcher := &fakeDispatcher{fail: "discovery"}
	if err := mgr.Run(context.Background(), dispatcher, &fakeWriter{}); err == nil {
		t.Fatal("expected Run to return the first failure")
	}

	scan, _ := mgr.Job("scan")
	if scan.Status != StatusFailed {
		t.Fatalf("expected scan to be failed, got %s", scan.Status)
	}
	compile, _ := mgr.Job("compile")
	if compile.Status == StatusCompleted {
		t.Fatal("compile must not run after its dependency failed")
	}
}

func TestResumeSkipsCompletedJobs(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	statePath := filepath.Join(filepath.Dir(path), "state.toml")

	jobs := []*Job{{ID: "scan", Daemon: "discovery", Callback: "scan_files", Status: StatusCompleted}}
	if err := SaveState(statePath, jobs); err != nil {
		t.Fatal(err)
	}

	mgr, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	mgr.state = statePath

	scan, _ := mgr.Job("scan")
	if scan.Status != StatusCompleted {
		t.Fatalf("expected resumed scan job to already be completed, got %s", scan.Status)
	}

	dispatcher := &fakeDispatcher{}
	if err := mgr.Run(context.Background(), dispatcher, &fakeWriter{}); err != nil {
		t.Fatal(err)
	}
	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != "compilation.compile_unit" {
		t.Fatalf("expected only compile to dispatch on resume, got %v", dispatcher.calls)
	}
}
