// Package openstacktest provides a scripted transports.Runner for tests of
// code that drives the openstack client.
package openstacktest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openfroyo/froyo-keystone/pkg/transports"
)

// Response is the scripted outcome of one command line.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Call is one recorded invocation.
type Call struct {
	Args []string
	Env  []string
}

// Line returns the arguments joined by spaces.
func (c Call) Line() string {
	return strings.Join(c.Args, " ")
}

// EnvValue returns the value of an environment variable passed to the call.
func (c Call) EnvValue(name string) string {
	for _, kv := range c.Env {
		if strings.HasPrefix(kv, name+"=") {
			return strings.TrimPrefix(kv, name+"=")
		}
	}
	return ""
}

// Runner answers command lines from a script and records every call.
// Command lines are matched on the arguments after the binary, joined by
// single spaces. Unscripted lines fail with exit code 99.
type Runner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []Call
}

// NewRunner creates an empty scripted runner.
func NewRunner() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

// On scripts the response for a command line. Scripting the same line
// several times queues the responses; the last one repeats.
func (r *Runner) On(line string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[line] = append(r.responses[line], resp)
	return r
}

// OnStdout scripts a successful response.
func (r *Runner) OnStdout(line, stdout string) *Runner {
	return r.On(line, Response{Stdout: stdout})
}

// OnFailure scripts a failing response with stderr text.
func (r *Runner) OnFailure(line, stderr string) *Runner {
	return r.On(line, Response{Stderr: stderr, ExitCode: 1})
}

// Run implements transports.Runner.
func (r *Runner) Run(_ context.Context, cmd transports.Command) (*transports.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Args: append([]string{}, cmd.Args...), Env: append([]string{}, cmd.Env...)}
	r.calls = append(r.calls, call)

	queue, ok := r.responses[call.Line()]
	if !ok || len(queue) == 0 {
		return &transports.Result{
			Stderr:   fmt.Sprintf("unscripted command: %s", call.Line()),
			ExitCode: 99,
		}, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		r.responses[call.Line()] = queue[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &transports.Result{Stdout: resp.Stdout, Stderr: resp.Stderr, ExitCode: resp.ExitCode}, nil
}

// Calls returns every recorded call in order.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Lines returns the recorded command lines in order.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Line()
	}
	return out
}

// Count returns how many recorded command lines start with prefix.
func (r *Runner) Count(prefix string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls, keeping the script.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
