package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, verbose, jsonOutput, metricsAddr = "", false, false, ""

	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const servicesManifest = `
service_identities:
  - name: glance
    password: secret
    service_type: image
    public_url: http://10.0.0.1:9292
    internal_url: http://10.0.0.1:9292
    admin_url: http://10.0.0.1:9292
`

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  bool
		want     string
	}{
		{
			name:     "valid",
			manifest: servicesManifest,
			want:     "valid",
		},
		{
			name: "schema error",
			manifest: `
resources:
  - kind: gadget
    title: x
`,
			wantErr: true,
		},
		{
			name: "blocking policy",
			manifest: `
resources:
  - kind: endpoint
    title: RegionOne/nova::compute
    attributes:
      region: RegionOne
      public_url: ftp://10.0.0.1
`,
			wantErr: true,
			want:    "endpoint-url-scheme",
		},
		{
			name: "invalid ensure",
			manifest: `
resources:
  - kind: role
    title: broken
    ensure: maybe
`,
			wantErr: true,
			want:    "role[broken]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "site.yaml", tt.manifest)
			out, err := execute(t, "validate", "-f", path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate error = %v, wantErr %v\n%s", err, tt.wantErr, out)
			}
			if tt.want != "" && !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestExpandCommand_RedactsPasswords(t *testing.T) {
	path := writeFile(t, "services.yaml", servicesManifest)

	out, err := execute(t, "expand", "-f", path)
	if err != nil {
		t.Fatalf("expand error = %v\n%s", err, out)
	}
	if strings.Contains(out, "secret") {
		t.Errorf("expand printed a password:\n%s", out)
	}
	for _, want := range []string{"kind: user", "kind: service", "kind: endpoint", redacted} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"auth", engine.NewAuthError("rejected", nil), 3},
		{"config", engine.NewConfigError("bad", nil), 2},
		{"incomplete run", errRunIncomplete, 1},
		{"other", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintRun(t *testing.T) {
	run := &engine.Run{
		ID:     "run-1",
		Status: engine.RunStatusPartial,
		Results: map[string]*engine.ResourceResult{
			"user[nova]": {
				ResourceID: "user[nova]",
				Operation:  engine.OperationUpdate,
				State:      engine.StateFlushed,
				Changes: []engine.Change{
					{Attribute: "password", Before: "old", After: "new", Sensitive: true},
					{Attribute: "email", Before: "a@example.com", After: "b@example.com"},
				},
			},
			"role[x]": {
				ResourceID: "role[x]",
				Operation:  engine.OperationCreate,
				State:      engine.StateFailed,
				Error:      errors.New("boom"),
			},
		},
		Summary: engine.RunSummary{Total: 2, Updated: 1, Failed: 1},
	}

	var out bytes.Buffer
	jsonOutput = false
	if err := printRun(&out, run, nil); err != nil {
		t.Fatal(err)
	}
	text := out.String()

	for _, want := range []string{"~ user[nova]", "! role[x]", "error: boom", "b@example.com", redacted} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "new") {
		t.Errorf("output shows a sensitive value:\n%s", text)
	}
	if err := runError(run); !errors.Is(err, errRunIncomplete) {
		t.Errorf("runError() = %v, want errRunIncomplete", err)
	}
}
