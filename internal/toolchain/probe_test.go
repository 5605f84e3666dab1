package toolchain

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFakeTool(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\necho 18.1.0\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestProbePrefersEmbeddedOverArtifact(t *testing.T) {
	embedded := t.TempDir()
	artifact := t.TempDir()

	embeddedBin := filepath.Join(embedded, "bin")
	artifactBin := filepath.Join(artifact, "bin")
	if err := os.MkdirAll(embeddedBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(artifactBin, 0o755); err != nil {
		t.Fatal(err)
	}

	for _, dir := range []string{embeddedBin, artifactBin} {
		for _, tool := range AllTools {
			writeFakeTool(t, dir, tool)
		}
	}

	candidates := buildCandidateList(ProbeOptions{
		EmbeddedRoot:  embedded,
		ArtifactRoots: []string{artifact},
	})

	if len(candidates) < 2 {
		t.Fatalf("expected embedded+artifact+path candidates, got %d", len(candidates))
	}
	if candidates[0].source != SourceEmbedded {
		t.Fatalf("expected embedded candidate first, got %v", candidates[0].source)
	}
	if candidates[1].source != SourceArtifact {
		t.Fatalf("expected artifact candidate second, got %v", candidates[1].source)
	}
}

func TestProbeRejectsPartialSource(t *testing.T) {
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	// Only clang++ present: a partial source must be rejected.
	writeFakeTool(t, bin, "clang++")

	_, err := tryResolve(nil, candidateRoot{source: SourceEmbedded, root: root, execDir: bin})
	if err == nil {
		t.Fatal("expected partial source to be rejected")
	}
}

func TestParseVersion(t *testing.T) {
	cases := map[string]Version{
		"18.1.0\n": {18, 1, 0},
		"18.1":     {18, 1, 0},
	}
	for text, want := range cases {
		got, err := parseVersion(text)
		if err != nil {
			t.Fatalf("parseVersion(%q): %v", text, err)
		}
		if got.Major != want.Major || got.Minor != want.Minor {
			t.Errorf("parseVersion(%q) = %+v, want %+v", text, got, want)
		}
	}
}
