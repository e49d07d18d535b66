// Package local runs commands on the local host with os/exec.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/openfroyo/froyo-keystone/pkg/transports"
)

// Runner executes commands as local child processes.
type Runner struct {
	// ScrubPrefixes lists environment variable prefixes removed from the
	// inherited environment before Command.Env is applied, so that only the
	// resolved credentials reach the child.
	ScrubPrefixes []string

	// WorkDir is the working directory of the child, if set.
	WorkDir string
}

// NewRunner creates a runner that scrubs inherited OS_* variables.
func NewRunner() *Runner {
	return &Runner{ScrubPrefixes: []string{"OS_"}}
}

// Run executes the command and waits for it to exit.
func (r *Runner) Run(ctx context.Context, command transports.Command) (*transports.Result, error) {
	if command.Path == "" {
		return nil, &transports.TransportError{Op: "exec", Err: fmt.Errorf("command path is required")}
	}

	cmd := exec.CommandContext(ctx, command.Path, command.Args...)
	cmd.Env = append(r.inheritedEnv(), command.Env...)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &transports.Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		StartedAt: start,
		Duration:  time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, &transports.TransportError{
			Op:          "exec",
			Err:         fmt.Errorf("failed to execute %s: %w", command.Path, err),
			IsTemporary: ctx.Err() == nil,
		}
	}

	return result, nil
}

func (r *Runner) inheritedEnv() []string {
	env := os.Environ()
	if len(r.ScrubPrefixes) == 0 {
		return env
	}
	kept := make([]string, 0, len(env))
outer:
	for _, kv := range env {
		for _, prefix := range r.ScrubPrefixes {
			if strings.HasPrefix(kv, prefix) {
				continue outer
			}
		}
		kept = append(kept, kv)
	}
	return kept
}
