// Package kernel provides the notebook execution engine: language runtimes
// submit cell code and stream back typed events, which the engine
// normalizes into notebook output records.
package kernel

// EventKind tags one runtime event.
type EventKind string

const (
	// EventDisplay carries a mime-typed rendering of a value.
	EventDisplay EventKind = "display"
	// EventDisplayUpdate replaces a previously emitted display record
	// identified by ValueID.
	EventDisplayUpdate EventKind = "display_update"
	// EventStdout carries standard-output text.
	EventStdout EventKind = "stdout"
	// EventStderr carries standard-error text.
	EventStderr EventKind = "stderr"
	// EventError is an explicit runtime error produced by the evaluated code.
	EventError EventKind = "error"
	// EventCommandFailed is a host-level submission failure, optionally with
	// a stack trace.
	EventCommandFailed EventKind = "command_failed"
	// EventReturnValue carries the displayed value of the cell's final
	// expression.
	EventReturnValue EventKind = "return_value"
	// EventDiagnostic is a static-analysis style warning or error.
	EventDiagnostic EventKind = "diagnostic"
)

// Event is one typed record in a runtime's response stream.
//
//nolint:govet // fieldalignment: grouped by event shape for readability
type Event struct {
	Kind EventKind

	// display / display_update / return_value
	ValueID string            // stable identity for in-place display updates
	Data    map[string]string // mime type → rendered value

	// stdout / stderr
	Text string

	// error / command_failed / diagnostic
	Name       string   // error kind or diagnostic severity
	Message    string
	StackTrace []string
}

// IsErrorKind reports whether this event becomes an error output record.
func (e *Event) IsErrorKind() bool {
	switch e.Kind {
	case EventError, EventCommandFailed, EventDiagnostic:
		return true
	default:
		return false
	}
}
