package kernel

import "context"

// Runtime evaluates code for one language and streams back typed events.
// Implementations keep evaluation state between Submit calls until Close.
type Runtime interface {
	// Language returns the language tag this runtime serves.
	Language() string

	// Submit evaluates code and returns the finished event sequence.
	// Evaluation failures inside the submitted code are reported as
	// events, not as a Go error; the error return is reserved for
	// runtime-level crashes (process died, transport broken).
	Submit(ctx context.Context, code string) ([]Event, error)

	// Close tears down the runtime and discards its state.
	Close() error
}

// RuntimeFactory creates a fresh runtime for a language tag. The engine
// calls it lazily on first use of a language and again after Restart.
type RuntimeFactory func(language string) (Runtime, error)
