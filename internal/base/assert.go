package base

import "fmt"

// Assert panics if pred() is false. Reserved for conditions that indicate a
// bug in cxxforge itself, never for recoverable build failures.
func Assert(pred func() bool) {
	if !pred() {
		panic("cxxforge: assertion failed")
	}
}

func AssertIn(value int, candidates ...int) {
	for _, c := range candidates {
		if value == c {
			return
		}
	}
	panic(fmt.Sprintf("cxxforge: unexpected value %d, want one of %v", value, candidates))
}
