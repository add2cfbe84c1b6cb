package mount

import (
	"fmt"

	"closedfn/internal/compiler"
)

// CaptureError reports a closed block referencing a name it does not declare or import.
type CaptureError struct {
	File       string
	Diagnostic compiler.Diagnostic
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("closed block of %q: %s; a closed block cannot capture anything outside its scope",
		e.File, e.Diagnostic.Message)
}

// InvariantError means mount ran without the state earlier phases must have
// produced. It aborts the whole build.
type InvariantError struct {
	Module string
	Msg    string
	Err    error
}

func (e *InvariantError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("internal invariant broken for %s: %s: %v", e.Module, e.Msg, e.Err)
	}
	return fmt.Sprintf("internal invariant broken for %s: %s", e.Module, e.Msg)
}

func (e *InvariantError) Unwrap() error { return e.Err }
