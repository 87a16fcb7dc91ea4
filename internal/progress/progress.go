// Package progress defines leveled progress reporting for transfer runs.
//
// A transfer emits events at four severities: debug diagnostics plus
// three nested levels (major, minor, detail) that map directly onto
// nested progress bars. The reporter needs no knowledge of the
// traversal; it only renders what it is told.
package progress

// Reporter consumes leveled progress events emitted during a transfer.
type Reporter interface {
	// Debug reports a diagnostic message. Reporters may suppress it.
	Debug(message string)

	// Major begins a new outer phase consisting of total units.
	Major(message string, total int)

	// Minor reports the index-th unit of the current major phase and
	// sizes the inner loop at total steps.
	Minor(index int, message string, total int)

	// Detail reports the index-th fine-grained step within the
	// current minor unit.
	Detail(index int, message string)
}

// Nop is a Reporter that discards all events. It is the default
// reporter, so callers never need to nil-check before emitting.
type Nop struct{}

func (Nop) Debug(string)           {}
func (Nop) Major(string, int)      {}
func (Nop) Minor(int, string, int) {}
func (Nop) Detail(int, string)     {}
