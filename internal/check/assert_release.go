//go:build !debug

// Package check holds invariant assertions that compile away outside debug builds.
package check

func Assert(bool, string) {}

func Assertf(bool, string, ...any) {}
