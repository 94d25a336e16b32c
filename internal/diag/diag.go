// Package diag renders consistency-check and server-error diagnostics,
// either as plain lines on the error stream or as GitHub workflow
// commands on stdout, and aggregates the overall failure state.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/os-autoinst/jobgroupsync/internal/openqa"
)

// ErrDiscrepancies reports that at least one diagnostic was emitted.
// It carries the non-zero exit status up to the command dispatcher.
var ErrDiscrepancies = errors.New("discrepancies found")

// Emitter writes diagnostics and remembers whether any were written.
type Emitter struct {
	github bool
	out    io.Writer // workflow commands
	errOut io.Writer // plain diagnostics
	failed bool
}

// NewEmitter creates an emitter. With github set, diagnostics are written
// to out as ::error workflow commands; otherwise they go to errOut.
func NewEmitter(github bool, out, errOut io.Writer) *Emitter {
	return &Emitter{github: github, out: out, errOut: errOut}
}

// Errorf reports one diagnostic attributed to a file.
func (e *Emitter) Errorf(file, format string, args ...any) {
	e.failed = true
	msg := fmt.Sprintf(format, args...)
	if e.github {
		fmt.Fprintf(e.out, "::error file=%s::%s\n", file, Encode(msg))
		return
	}
	color.New(color.FgRed).Fprintln(e.errOut, msg)
}

// ShowServerError renders a server validation payload for filename.
// Structured entries become one diagnostic each; a flat payload becomes a
// single line.
func (e *Emitter) ShowServerError(result *openqa.ApplyResult, filename string) {
	if result.Error.Flat != "" {
		e.Errorf(filename, "Error %d: %s", result.Status, result.Error.Flat)
		return
	}
	for _, entry := range result.Error.Entries {
		if entry.Path != "" {
			e.Errorf(filename, "Error %d:\n  YAML Path: %s\n  Message: %s",
				result.Status, entry.Path, entry.Message)
		} else {
			e.Errorf(filename, "Error %d:\n%s", result.Status, entry.Message)
		}
	}
}

// Failed reports whether any diagnostic has been emitted.
func (e *Emitter) Failed() bool {
	return e.failed
}

// Err returns ErrDiscrepancies when any diagnostic has been emitted,
// nil otherwise.
func (e *Emitter) Err() error {
	if e.failed {
		return ErrDiscrepancies
	}
	return nil
}

// Encode escapes a message for a single-line GitHub workflow command.
func Encode(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	return strings.ReplaceAll(s, "\n", "%0A")
}
