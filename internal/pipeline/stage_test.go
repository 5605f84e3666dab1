package pipeline

import (
	"errors"
	"testing"
)

func TestStageErrorRoundTripsThroughString(t *testing.T) {
	se := Fail(StageCompile, errors.New("undefined reference to `foo'"))
	parsed, ok := ParseStageError(se.Error())
	if !ok {
		t.Fatal("expected ParseStageError to recognize the stage= convention")
	}
	if parsed.Stage != StageCompile {
		t.Fatalf("expected stage %q, got %q", StageCompile, parsed.Stage)
	}
	if parsed.Err.Error() != "undefined reference to `foo'" {
		t.Fatalf("expected original message preserved, got %q", parsed.Err.Error())
	}
}

func TestParseStageErrorRejectsPlainErrors(t *testing.T) {
	if _, ok := ParseStageError("connection refused"); ok {
		t.Fatal("expected a plain transport error to not parse as a StageError")
	}
}

func TestStageErrorRoundTripsOutputAndCommand(t *testing.T) {
	se := &StageError{
		Stage:   StageLink,
		Err:     errors.New("exit status 1"),
		Command: "clang++ -shared -fPIC a.ll -o liba.so",
		Output:  "relocation R_X86_64_32 against symbol can not be used when making a shared object; recompile with -fPIC",
	}
	parsed, ok := ParseStageError(se.Error())
	if !ok {
		t.Fatal("expected ParseStageError to recognize the stage= convention")
	}
	if parsed.Command != se.Command {
		t.Fatalf("expected command %q, got %q", se.Command, parsed.Command)
	}
	if parsed.Output != se.Output {
		t.Fatalf("expected output %q, got %q", se.Output, parsed.Output)
	}
}

func TestParseStageErrorFindsMarkerBehindAnOuterWrapper(t *testing.T) {
	se := Fail(StageDiscovery, errors.New("boom"))
	wrapped := "scan_files: " + se.Error()
	parsed, ok := ParseStageError(wrapped)
	if !ok {
		t.Fatal("expected ParseStageError to find the stage= marker behind an outer %w wrapper")
	}
	if parsed.Stage != StageDiscovery {
		t.Fatalf("expected stage %q, got %q", StageDiscovery, parsed.Stage)
	}
}
