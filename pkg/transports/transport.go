// Package transports defines how the openstack client process is executed:
// locally, or on a remote host over SSH.
package transports

import (
	"context"
	"time"
)

// Command is one invocation of an external program.
type Command struct {
	// Path is the program to run, e.g. "openstack".
	Path string

	// Args are the arguments, in order.
	Args []string

	// Env holds KEY=VALUE pairs added to the process environment.
	Env []string
}

// Result is the outcome of a command that ran to completion.
type Result struct {
	// Stdout is the standard output of the command.
	Stdout string

	// Stderr is the standard error output of the command.
	Stderr string

	// ExitCode is the command's exit code.
	ExitCode int

	// StartedAt is when the command started executing.
	StartedAt time.Time

	// Duration is the total execution time.
	Duration time.Duration
}

// Success reports whether the command exited with code 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes commands. A non-zero exit is reported in Result, not as
// an error; the error return is reserved for failures to run at all.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) (*Result, error)

// Run calls f(ctx, cmd).
func (f RunnerFunc) Run(ctx context.Context, cmd Command) (*Result, error) {
	return f(ctx, cmd)
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "exec").
	Op string

	// Err is the underlying error.
	Err error

	// IsTemporary indicates if the error is temporary and can be retried.
	IsTemporary bool

	// IsAuthError indicates if the error is related to transport authentication.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether the error is temporary.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}
