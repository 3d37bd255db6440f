// Package dispatch is the Command Dispatcher (C6) from spec.md §4.6: one
// handler per sub-command, working directly against the core packages so
// the dispatch logic is unit-testable without constructing a urfave/cli
// context, per SPEC_FULL.md's "internal/dispatch dispatch table" supplement.
// main.go is the thin urfave/cli/v2 layer that parses flags and calls here.
package dispatch

// ExitCoder lets a returned error carry a specific process exit code. A nil
// error or one that doesn't implement this interface maps to 0 or 1
// respectively, the generic success/failure codes from spec.md §7.
type ExitCoder interface {
	ExitCode() int
}

// codedError attaches an exit code to an existing error without discarding
// it: errors.Is/As still see through to the wrapped cause.
type codedError struct {
	cause error
	code  int
}

func withCode(err error, code int) error {
	if err == nil {
		return nil
	}
	return &codedError{cause: err, code: code}
}

func (e *codedError) Error() string { return e.cause.Error() }
func (e *codedError) Unwrap() error { return e.cause }
func (e *codedError) ExitCode() int { return e.code }

// Misuse marks err as a misuse failure (exit 2), spec.md §7 kind 1.
func Misuse(err error) error { return withCode(err, 2) }

// errNotFound is the exit-3 "not found" outcome for unoccupied/crontab,
// spec.md §7 kind 5.
type errNotFound struct{ what string }

func (e errNotFound) Error() string { return e.what + ": not found" }
func (e errNotFound) ExitCode() int { return 3 }

// NotFound marks a "no match" outcome (exit 3), spec.md §7 kind 5.
func NotFound(what string) error { return errNotFound{what} }

// ExitCodeFor maps err to a process exit code per spec.md §6/§7: nil is 0,
// an ExitCoder reports its own code, anything else is the generic failure
// code 1.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(ExitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}
