// Package process runs external tools (clang++, opt, llvm-link, llvm-nm…)
// under a controlled, restorable environment block, matching spec.md §4.1's
// scoped_invocation contract. Grounded on ppb's utils/Process.go and
// utils/CommandEnv.go.
package process

import (
	"fmt"
	"os"
	"strings"
)

// Environment is an ordered set of NAME=value1<sep>value2 style variable
// overlays, each name listed once and its values joined with
// os.PathListSeparator on export; same shape as ppb's ProcessEnvironment.
type Environment struct {
	order  []string
	values map[string][]string
}

func NewEnvironment() *Environment {
	return &Environment{values: map[string][]string{}}
}

func (e *Environment) Append(name string, values ...string) *Environment {
	if _, ok := e.values[name]; !ok {
		e.order = append(e.order, name)
		e.values[name] = nil
	}
	e.values[name] = append(e.values[name], values...)
	return e
}

// Prepend inserts values ahead of whatever the name already holds — the
// PATH/library-path/include-path overlay semantics spec.md §4.1 describes.
func (e *Environment) Prepend(name string, values ...string) *Environment {
	if _, ok := e.values[name]; !ok {
		e.order = append(e.order, name)
	}
	e.values[name] = append(append([]string{}, values...), e.values[name]...)
	return e
}

// Merge appends every variable from other onto e, preserving e's own
// existing values ahead of other's.
func (e *Environment) Merge(other *Environment) *Environment {
	if other == nil {
		return e
	}
	for _, name := range other.order {
		e.Append(name, other.values[name]...)
	}
	return e
}

func (e *Environment) Export() []string {
	out := make([]string, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, fmt.Sprintf("%s=%s", name, strings.Join(e.values[name], string(os.PathListSeparator))))
	}
	return out
}

// OSEnviron snapshots the ambient process environment as an *Environment so
// it can be merged with tool-specific overlays.
func OSEnviron() *Environment {
	e := NewEnvironment()
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			e.Append(parts[0], parts[1])
		}
	}
	return e
}
