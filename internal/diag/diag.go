// Package diag implements the kernel's diagnostic channel: the single
// path by which recoverable user-input errors, fatal model-exhaustion
// conditions, and internal-invariant violations surface to the host,
// per spec.md §7.
package diag

import "fmt"

// Severity classifies a Diagnostic per spec.md §7's taxonomy.
type Severity int

const (
	Info Severity = iota
	Warning
	Recoverable
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Recoverable:
		return "recoverable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Diagnostic is one structured entry on the channel.
type Diagnostic struct {
	Severity Severity
	Message  string
}

func (d Diagnostic) Error() string { return fmt.Sprintf("%s: %s", d.Severity, d.Message) }

// Channel accumulates diagnostics for later draining by the host, mirrors
// the teacher's pattern of accumulating display/assertion output on a
// call frame rather than panicking (pkg/debugger's history buffer,
// mirvm's Statistics accumulator).
type Channel struct {
	entries []Diagnostic
	fatal   *Diagnostic
}

// Report appends a diagnostic. The first Fatal diagnostic reported is
// latched; subsequent fatal reports are still recorded but do not replace
// it, so FatalError always returns the original cause.
func (c *Channel) Report(sev Severity, format string, args ...interface{}) {
	d := Diagnostic{Severity: sev, Message: fmt.Sprintf(format, args...)}
	c.entries = append(c.entries, d)
	if sev == Fatal && c.fatal == nil {
		fatal := d
		c.fatal = &fatal
	}
}

// IsFatal reports whether a Fatal diagnostic has been reported.
func (c *Channel) IsFatal() bool { return c.fatal != nil }

// FatalError returns the first fatal diagnostic reported, or nil.
func (c *Channel) FatalError() error {
	if c.fatal == nil {
		return nil
	}
	return *c.fatal
}

// Take drains and returns all diagnostics accumulated so far.
func (c *Channel) Take() []Diagnostic {
	out := c.entries
	c.entries = nil
	return out
}

// All returns the accumulated diagnostics without draining them.
func (c *Channel) All() []Diagnostic {
	return append([]Diagnostic(nil), c.entries...)
}
