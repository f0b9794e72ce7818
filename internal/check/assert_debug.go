//go:build debug

// Package check holds invariant assertions that compile away outside debug builds.
package check

import "fmt"

// Assert panics with msg when cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		panic("ggpostgres: invariant violated: " + msg)
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		Assert(false, fmt.Sprintf(format, args...))
	}
}
