package errorstore

// seed is one curated well-known diagnostic and its canonical fix, per
// spec.md §4.2's bootstrap() operation.
type seed struct {
	diagnostic  string
	action      string
	description string
}

var bootstrapSeeds = []seed{
	{
		diagnostic:  "undefined reference to `pthread_create'",
		action:      "add library to link list: pthread",
		description: "Link against pthread: add \"pthread\" to binary.link_libraries.",
	},
	{
		diagnostic:  "relocation R_X86_64_32 against symbol can not be used when making a shared object; recompile with -fPIC",
		action:      "append -fPIC to compile flags",
		description: "Append -fPIC to compile.flags so objects are position-independent and linkable into a shared library.",
	},
	{
		diagnostic:  "fatal error: 'stdio.h' file not found",
		action:      "add system include directory",
		description: "Add the toolchain's system header directory to discovery.include_dirs.",
	},
	{
		diagnostic:  "call to member function is ambiguous",
		action:      "qualify the call with its namespace",
		description: "Disambiguate the overload by fully qualifying the call or adding an explicit cast.",
	},
}

// Bootstrap seeds the store with the curated diagnostics above, each
// pre-loaded with one successful application so suggest_fixes immediately
// has a non-zero confidence to rank, per the confidence >= 0.5 expectation
// in spec.md §8 scenario 4. Idempotent: re-running does not duplicate
// patterns or fixes (RecordDiagnostic/RecordFix both upsert).
func (s *Store) Bootstrap() error {
	for _, sd := range bootstrapSeeds {
		patternID, err := s.RecordDiagnostic(sd.diagnostic)
		if err != nil {
			return err
		}
		if err := s.RecordFix(patternID, sd.action, sd.description, "", true); err != nil {
			return err
		}
	}
	return nil
}
