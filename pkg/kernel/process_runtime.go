package kernel

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ProcessRuntime evaluates code by piping it to an interpreter process,
// one process per submission. State does not persist between submissions;
// notebooks targeting it should keep cells self-contained or rely on full
// document runs.
type ProcessRuntime struct {
	language string
	argv     []string
}

// InterpreterCommands maps language tags to interpreter argv that read the
// program from stdin.
//
//nolint:gochecknoglobals // lookup table for the default factory
var InterpreterCommands = map[string][]string{
	"python": {"python3", "-"},
	"sh":     {"sh", "-s"},
	"bash":   {"bash", "-s"},
}

// NewProcessRuntime creates a process-backed runtime for language using the
// given interpreter argv.
func NewProcessRuntime(language string, argv []string) (*ProcessRuntime, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("interpreter command cannot be empty")
	}
	return &ProcessRuntime{language: language, argv: argv}, nil
}

// ProcessRuntimeFactory builds runtimes from InterpreterCommands.
func ProcessRuntimeFactory(language string) (Runtime, error) {
	argv, ok := InterpreterCommands[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("no interpreter configured for language %q", language)
	}
	return NewProcessRuntime(language, argv)
}

// Language returns the language tag this runtime serves.
func (r *ProcessRuntime) Language() string {
	return r.language
}

// Submit runs the interpreter with code on stdin and maps the process
// outcome to events: stdout and stderr become stream events, a non-zero
// exit becomes an error event.
func (r *ProcessRuntime) Submit(ctx context.Context, code string) ([]Event, error) {
	cmd := exec.CommandContext(ctx, r.argv[0], r.argv[1:]...)
	cmd.Stdin = strings.NewReader(code)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var events []Event
	if stdout.Len() > 0 {
		events = append(events, Event{Kind: EventStdout, Text: stdout.String()})
	}
	if stderr.Len() > 0 {
		events = append(events, Event{Kind: EventStderr, Text: stderr.String()})
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			events = append(events, Event{
				Kind:    EventError,
				Name:    "Error",
				Message: fmt.Sprintf("process exited with code %d: %s", exitErr.ExitCode(), lastLine(stderr.String())),
			})
			return events, nil
		}
		// Interpreter failed to start: runtime-level crash.
		return nil, fmt.Errorf("failed to run interpreter %s: %w", r.argv[0], runErr)
	}

	return events, nil
}

// Close is a no-op; each submission owns its process.
func (r *ProcessRuntime) Close() error {
	return nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
