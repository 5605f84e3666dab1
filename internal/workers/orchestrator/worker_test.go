package orchestratorworker

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/cxxforge/cxxforge/internal/pipeline"
)

type stubClient struct {
	response map[string]interface{}
	err      error
}

func (s stubClient) Call(ctx context.Context, callback string, args map[string]interface{}) (map[string]interface{}, error) {
	return s.response, s.err
}

func TestResultToMapProjectsSuccessAndTimings(t *testing.T) {
	r := &pipeline.Result{
		Success:     true,
		LibraryPath: "/proj/julia/libfoo.so",
		Elapsed:     1500 * time.Millisecond,
		StageTimings: map[pipeline.Stage]time.Duration{
			pipeline.StageCompile: 1200 * time.Millisecond,
		},
	}

	got := resultToMap(r)
	want := map[string]interface{}{
		"success":         true,
		"library_path":    "/proj/julia/libfoo.so",
		"elapsed":         "1.5s",
		"elapsed_ms":      float64(1500),
		"stage_timings":   map[string]interface{}{"compile": "1.2s"},
		"failed_stage":    "",
		"error":           "",
		"suggested_fixes": []interface{}{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("resultToMap mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckDaemonsReportsPerWorkerLiveness(t *testing.T) {
	w := New(pipeline.Endpoints{
		Discovery:   stubClient{response: map[string]interface{}{"success": true}},
		Setup:       stubClient{response: map[string]interface{}{"success": true}},
		Compilation: stubClient{err: context.DeadlineExceeded},
	}, nil)

	out, err := w.checkDaemons(context.Background(), nil)
	if err != nil {
		t.Fatalf("checkDaemons returned error: %v", err)
	}
	if out["discovery"] != true || out["setup"] != true {
		t.Fatalf("expected discovery and setup alive, got %+v", out)
	}
	if out["compilation"] != false {
		t.Fatalf("expected compilation dead, got %+v", out)
	}
}
