package local

import (
	"context"
	"strings"
	"testing"

	"github.com/openfroyo/froyo-keystone/pkg/transports"
)

func TestRunner_CapturesOutputAndExitCode(t *testing.T) {
	r := NewRunner()

	tests := []struct {
		name     string
		args     []string
		exitCode int
		stdout   string
		stderr   string
	}{
		{"success", []string{"-c", "echo hello"}, 0, "hello", ""},
		{"failure", []string{"-c", "echo 'No user with a name or ID of x exists.' >&2; exit 1"}, 1, "", "No user with a name or ID of x exists."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := r.Run(context.Background(), transports.Command{Path: "/bin/sh", Args: tt.args})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if result.ExitCode != tt.exitCode {
				t.Errorf("Expected exit code %d, got %d", tt.exitCode, result.ExitCode)
			}
			if strings.TrimSpace(result.Stdout) != tt.stdout {
				t.Errorf("Expected stdout %q, got %q", tt.stdout, result.Stdout)
			}
			if strings.TrimSpace(result.Stderr) != tt.stderr {
				t.Errorf("Expected stderr %q, got %q", tt.stderr, result.Stderr)
			}
		})
	}
}

func TestRunner_ScrubsInheritedCredentials(t *testing.T) {
	t.Setenv("OS_PASSWORD", "leaked")

	r := NewRunner()
	result, err := r.Run(context.Background(), transports.Command{
		Path: "/bin/sh",
		Args: []string{"-c", `echo "$OS_PASSWORD/$OS_USERNAME"`},
		Env:  []string{"OS_USERNAME=admin"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := strings.TrimSpace(result.Stdout); got != "/admin" {
		t.Errorf("Expected only explicit env to reach the child, got %q", got)
	}
}

func TestRunner_MissingBinary(t *testing.T) {
	_, err := NewRunner().Run(context.Background(), transports.Command{Path: "/nonexistent/openstack"})
	if err == nil {
		t.Fatal("Expected error for missing binary")
	}
	if _, ok := err.(*transports.TransportError); !ok {
		t.Errorf("Expected TransportError, got %T", err)
	}
}
