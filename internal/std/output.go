// Package std provides the small leveled writer every command uses for
// user-facing messages, the way the teacher's commands write through a
// process-wide std.Out. It intentionally does not carry over the teacher's
// interactive progress bars and prompts (spec.md's sub-commands are
// non-interactive); it keeps only the small leveled Write* surface. main
// reports command failures through WriteFailuref; the other Write* methods
// are not called by any command.
package std

import (
	"fmt"
	"io"
	"os"
)

// Output is a thin, leveled wrapper around a writer.
type Output struct {
	w io.Writer
}

// Out is the process-wide output, analogous to the teacher's std.Out
// global. It writes to stderr; main's Before hook hands it to dispatch.New.
var Out = &Output{w: os.Stderr}

// NewOutput returns an Output writing to w.
func NewOutput(w io.Writer) *Output { return &Output{w: w} }

func (o *Output) WriteLine(s string) {
	fmt.Fprintln(o.w, s)
}

// WriteFailuref writes a failure-styled diagnostic line.
func (o *Output) WriteFailuref(format string, args ...any) {
	fmt.Fprintf(o.w, "✗ "+format+"\n", args...)
}

// WriteWarningf writes a warning-styled diagnostic line.
func (o *Output) WriteWarningf(format string, args ...any) {
	fmt.Fprintf(o.w, "! "+format+"\n", args...)
}

// WriteSuccessf writes a success-styled diagnostic line.
func (o *Output) WriteSuccessf(format string, args ...any) {
	fmt.Fprintf(o.w, "✓ "+format+"\n", args...)
}
