package errorstore

import "testing"

func TestNormalizeIsIdempotent(t *testing.T) {
	raw := `/home/user/proj/src/hello.cpp:12:5: error: undefined reference to 'pthread_create' at 0x7ffeabc123 (pid=4821)`
	once := Normalize(raw)
	twice := Normalize(once)
	if once != twice {
		t.Fatalf("normalize is not idempotent:\n once=%q\n twice=%q", once, twice)
	}
}

func TestNormalizeScrubsVolatileDetail(t *testing.T) {
	a := Normalize("/tmp/build1/a.cpp:10:2: error: undefined reference to 'foo'")
	b := Normalize("/tmp/build2/a.cpp:99:7: error: undefined reference to 'bar'")
	if a != b {
		t.Fatalf("expected normalization to scrub paths/lines/identifiers: %q vs %q", a, b)
	}
}

func TestOpenInMemoryAndBootstrapIsIdempotent(t *testing.T) {
	store, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.Bootstrap(); err != nil {
		t.Fatal(err)
	}
	if err := store.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	ranked, err := store.SuggestFixes("undefined reference to `pthread_create'", 0.3, 0.0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 1 {
		t.Fatalf("bootstrap should not duplicate fixes after repeat calls, got %d entries", len(ranked))
	}
}

func TestSuggestFixesRanksByConfidenceTimesSimilarity(t *testing.T) {
	store, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if err := store.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	ranked, err := store.SuggestFixes("undefined reference to `pthread_create' in main.o", 0.3, 0.5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) == 0 {
		t.Fatal("expected at least one suggested fix above threshold")
	}
	if ranked[0].Fix.Action != "add library to link list: pthread" {
		t.Fatalf("expected pthread fix to rank first, got %q", ranked[0].Fix.Action)
	}
	if ranked[0].Fix.Confidence() < 0.5 {
		t.Fatalf("expected confidence >= 0.5, got %f", ranked[0].Fix.Confidence())
	}
}

func TestFixConfidenceIsMonotonic(t *testing.T) {
	store, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	patternID, err := store.RecordDiagnostic("missing symbol foo")
	if err != nil {
		t.Fatal(err)
	}

	if err := store.RecordFix(patternID, "add-foo", "add foo", "/proj", true); err != nil {
		t.Fatal(err)
	}
	before := mustConfidence(t, store, patternID, "add-foo")

	if err := store.RecordFix(patternID, "add-foo", "add foo", "/proj", true); err != nil {
		t.Fatal(err)
	}
	afterSuccess := mustConfidence(t, store, patternID, "add-foo")
	if afterSuccess < before {
		t.Fatalf("confidence must not decrease after a success: %f -> %f", before, afterSuccess)
	}

	if err := store.RecordFix(patternID, "add-foo", "add foo", "/proj", false); err != nil {
		t.Fatal(err)
	}
	afterFailure := mustConfidence(t, store, patternID, "add-foo")
	if afterFailure > afterSuccess {
		t.Fatalf("confidence must not increase after a failure: %f -> %f", afterSuccess, afterFailure)
	}
	if afterFailure < 0 || afterFailure > 1 {
		t.Fatalf("confidence out of [0,1] bounds: %f", afterFailure)
	}
}

func mustConfidence(t *testing.T, store *Store, patternID, action string) float64 {
	t.Helper()
	row := store.db.QueryRow(`SELECT successes, failures FROM error_fixes WHERE pattern_id = ? AND action = ?`, patternID, action)
	var successes, failures int
	if err := row.Scan(&successes, &failures); err != nil {
		t.Fatal(err)
	}
	f := Fix{Successes: successes, Failures: failures}
	return f.Confidence()
}
