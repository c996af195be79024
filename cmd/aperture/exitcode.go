package main

import (
	"errors"

	"github.com/kioku/aperture/pkg/aperrors"
)

// exitCodeFor maps an error to the process exit code: 1 is any
// user-visible runtime error, 2 is reserved for CLI argument-parsing
// errors.
func exitCodeFor(err error) int {
	var invErr *aperrors.InvocationError
	if errors.As(err, &invErr) {
		return 2
	}
	return 1
}
