package keystone

import (
	"context"
	"testing"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack/openstacktest"
)

const userShell = `domain_id="domain1_id"
email="user1@example.com"
enabled="True"
id="37b7086693ec482389799da5dc546fa4"
name="user1"
`

func userAttrs() map[string]interface{} {
	return map[string]interface{}{
		"enabled":  true,
		"password": "secret",
		"email":    "user1@example.com",
		"domain":   "domain1",
	}
}

func TestUser_CreateThenExistsHasNoRoundTrip(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing).
		OnFailure("user show --format shell user1 --domain domain1_id", "No user with a name or ID of 'user1' exists.").
		OnStdout("user create --format shell user1 --enable --password secret --email user1@example.com --domain domain1", `email="user1@example.com"
enabled="True"
id="user1_id"
name="user1"
username="user1"
`)
	backend := newBackend(runner)
	p := build(t, backend, resource(engine.KindUser, "user1", userAttrs()))
	ctx := context.Background()

	exists, err := p.Exists(ctx)
	if err != nil || exists {
		t.Fatalf("Expected absent user, got %v, %v", exists, err)
	}
	if err := p.Create(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.State() != engine.StateCreated {
		t.Errorf("Expected CREATED, got %s", p.State())
	}

	// a second provider for the same user in the same run sees the record
	again := build(t, backend, resource(engine.KindUser, "user1::domain1", nil))
	exists, err = again.Exists(ctx)
	if err != nil || !exists {
		t.Fatalf("Expected created user to exist, got %v, %v", exists, err)
	}
	if n := runner.Count("user show"); n != 1 {
		t.Errorf("Expected 1 show call, got %d", n)
	}
	if n := runner.Count("domain list"); n != 1 {
		t.Errorf("Expected 1 domain listing, got %d", n)
	}
}

func TestUser_ConvergeCreateArgs(t *testing.T) {
	tests := []struct {
		name   string
		title  string
		attrs  map[string]interface{}
		create string
	}{
		{
			name:   "domain in parameter",
			title:  "user1",
			attrs:  userAttrs(),
			create: "user create --format shell user1 --enable --password secret --email user1@example.com --domain domain1",
		},
		{
			name:   "domain in title",
			title:  "user1::domain1",
			attrs:  map[string]interface{}{"password": "secret", "email": "user1@example.com"},
			create: "user create --format shell user1 --enable --password secret --email user1@example.com --domain domain1",
		},
		{
			name:   "domain not provided",
			title:  "user1",
			attrs:  map[string]interface{}{"password": "secret", "description": "my description", "email": "user1@example.com"},
			create: "user create --format shell user1 --enable --password secret --description my description --email user1@example.com --domain Default",
		},
		{
			name:   "disabled without password",
			title:  "user1::domain2",
			attrs:  map[string]interface{}{"enabled": false},
			create: "user create --format shell user1 --disable --domain domain2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := openstacktest.NewRunner().
				OnStdout("domain list --format csv --quiet", domainListing).
				OnStdout(tt.create, "id=\"user1_id\"\nname=\"user1\"\n")
			for _, domainID := range []string{"default", "domain1_id", "domain2_id"} {
				runner.OnFailure("user show --format shell user1 --domain "+domainID, "No user with a name or ID of 'user1' exists.")
			}

			result := engine.Converge(context.Background(), build(t, newBackend(runner), resource(engine.KindUser, tt.title, tt.attrs)), false)
			if result.Error != nil {
				t.Fatalf("Expected no error, got %v (calls %v)", result.Error, runner.Lines())
			}
			if result.Operation != engine.OperationCreate || result.State != engine.StateFlushed {
				t.Errorf("Expected create ending FLUSHED, got %s/%s", result.Operation, result.State)
			}
			if n := runner.Count(tt.create); n != 1 {
				t.Errorf("Expected create call, got %v", runner.Lines())
			}
		})
	}
}

func TestUser_FlushBatchesSetters(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing).
		OnStdout("user show --format shell user1 --domain domain1_id", userShell).
		OnStdout("user set --disable --description new description --email new@example.com 37b7086693ec482389799da5dc546fa4", "")

	res := resource(engine.KindUser, "user1::domain1", map[string]interface{}{
		"enabled":     false,
		"description": "new description",
		"email":       "new@example.com",
	})
	result := engine.Converge(context.Background(), build(t, newBackend(runner), res), false)

	if result.Error != nil {
		t.Fatalf("Expected no error, got %v", result.Error)
	}
	if len(result.Changes) != 3 {
		t.Errorf("Expected 3 changes, got %v", result.Changes)
	}
	if n := runner.Count("user set"); n != 1 {
		t.Errorf("Expected exactly one set call, got %v", runner.Lines())
	}
	if result.State != engine.StateFlushed {
		t.Errorf("Expected FLUSHED, got %s", result.State)
	}
}

func TestUser_UnchangedIssuesNoSet(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing).
		OnStdout("user show --format shell user1 --domain domain1_id", userShell)

	res := resource(engine.KindUser, "user1::domain1", map[string]interface{}{"email": "user1@example.com"})
	result := engine.Converge(context.Background(), build(t, newBackend(runner), res), false)

	if result.Error != nil || result.Operation != engine.OperationNoop {
		t.Fatalf("Expected noop, got %s, %v", result.Operation, result.Error)
	}
	expectLines(t, runner,
		"domain list --format csv --quiet",
		"user show --format shell user1 --domain domain1_id",
	)
}

func TestUser_Password(t *testing.T) {
	tokenOutput := "2015-05-14T04:06:05Z\ne664a386befa4a30878dcef20e79f167\n8dce2ae9ecd34c199d2877bf319a3d06\nac43ec53d5a74a0b9f51523ae41a29f0\n"

	tests := []struct {
		name      string
		replace   interface{}
		probe     *openstacktest.Response
		want      string
		wantErr   bool
		wantProbe bool
	}{
		{"password matches", nil, &openstacktest.Response{Stdout: tokenOutput}, "pass_one", false, true},
		{"password rejected", nil, &openstacktest.Response{Stderr: "HTTP 401 invalid authentication", ExitCode: 1}, "", false, true},
		{"probe failure propagates", nil, &openstacktest.Response{Stderr: "Internal Server Error (HTTP 500)", ExitCode: 1}, "", true, true},
		{"unmanaged password", false, nil, "pass_one", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := openstacktest.NewRunner().
				OnStdout("domain list --format csv --quiet", domainListing).
				OnStdout("user show --format shell user_one --domain domain1_id", `id="user1_id"
name="user_one"
enabled="True"
`)
			if tt.probe != nil {
				runner.On("token issue --format value", *tt.probe)
			}

			attrs := map[string]interface{}{"password": "pass_one", "domain": "domain1"}
			if tt.replace != nil {
				attrs["replace_password"] = tt.replace
			}
			p := build(t, newBackend(runner), resource(engine.KindUser, "user_one", attrs)).(*User)
			if _, err := p.Exists(context.Background()); err != nil {
				t.Fatalf("Exists failed: %v", err)
			}

			got, err := p.Password(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Expected password %q, got %q", tt.want, got)
			}

			probes := 0
			for _, call := range runner.Calls() {
				if call.Line() != "token issue --format value" {
					continue
				}
				probes++
				if call.EnvValue("OS_USER_ID") != "user1_id" || call.EnvValue("OS_PASSWORD") != "pass_one" {
					t.Errorf("Expected probe as user1_id, got env %v", call.Env)
				}
				if call.EnvValue("OS_USER_DOMAIN_NAME") != "Default" {
					t.Errorf("Expected Default user domain on probe, got %v", call.Env)
				}
			}
			if tt.wantProbe != (probes == 1) {
				t.Errorf("Expected probe=%v, got %d probes", tt.wantProbe, probes)
			}
		})
	}
}

func TestUser_MismatchedPasswordIsReplaced(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing).
		OnStdout("user show --format shell user1 --domain domain1_id", userShell).
		OnFailure("token issue --format value", "The request you have made requires authentication. (HTTP 401)").
		OnStdout("user set --password secret 37b7086693ec482389799da5dc546fa4", "")

	res := resource(engine.KindUser, "user1::domain1", map[string]interface{}{"password": "secret"})
	result := engine.Converge(context.Background(), build(t, newBackend(runner), res), false)

	if result.Error != nil {
		t.Fatalf("Expected no error, got %v", result.Error)
	}
	if len(result.Changes) != 1 || !result.Changes[0].Sensitive {
		t.Fatalf("Expected one sensitive change, got %v", result.Changes)
	}
	if n := runner.Count("user set --password"); n != 1 {
		t.Errorf("Expected password set call, got %v", runner.Lines())
	}
}

func TestUser_UnresolvableDomain(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing)

	p := build(t, newBackend(runner), resource(engine.KindUser, "user1::nosuchdomain", nil))
	_, err := p.Exists(context.Background())
	if !engine.IsNotFound(err) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	if n := runner.Count("user show"); n != 0 {
		t.Errorf("Expected no show call, got %v", runner.Lines())
	}
}

func TestUser_Destroy(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing).
		OnStdout("user show --format shell user1 --domain domain1_id", userShell).
		OnStdout("user delete 37b7086693ec482389799da5dc546fa4", "")

	res := resource(engine.KindUser, "user1::domain1", nil)
	res.Ensure = engine.EnsureAbsent
	result := engine.Converge(context.Background(), build(t, newBackend(runner), res), false)

	if result.Error != nil || result.Operation != engine.OperationDelete {
		t.Fatalf("Expected delete, got %s, %v", result.Operation, result.Error)
	}
	if n := runner.Count("user delete"); n != 1 {
		t.Errorf("Expected delete call, got %v", runner.Lines())
	}
}

func TestUser_DryRunMakesNoChanges(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing).
		OnStdout("user show --format shell user1 --domain domain1_id", userShell)

	res := resource(engine.KindUser, "user1::domain1", map[string]interface{}{"enabled": false})
	result := engine.Converge(context.Background(), build(t, newBackend(runner), res), true)

	if result.Error != nil || result.Operation != engine.OperationUpdate {
		t.Fatalf("Expected planned update, got %s, %v", result.Operation, result.Error)
	}
	if n := runner.Count("user set"); n != 0 {
		t.Errorf("Expected no set call in dry run, got %v", runner.Lines())
	}
}

func TestUser_OperationsWithoutPriorExists(t *testing.T) {
	const missing = "No user with a name or ID of 'user1' exists."

	tests := []struct {
		name      string
		title     string
		script    func(r *openstacktest.Runner)
		op        func(ctx context.Context, p *User) error
		wantState engine.ProviderState
		wantLine  string
		denyLine  string
	}{
		{
			name:  "create resolves the domain",
			title: "user1",
			script: func(r *openstacktest.Runner) {
				r.OnStdout("user create --format shell user1 --enable --password secret --email user1@example.com --domain domain1",
					"id=\"user1_id\"\nname=\"user1\"\n")
			},
			op:        func(ctx context.Context, p *User) error { return p.Create(ctx) },
			wantState: engine.StateCreated,
			wantLine:  "user create --format shell user1 --enable --password secret --email user1@example.com --domain domain1",
			denyLine:  "user show",
		},
		{
			name:  "setter then flush looks the user up",
			title: "user1",
			script: func(r *openstacktest.Runner) {
				r.OnStdout("user show --format shell user1 --domain domain1_id", userShell).
					OnStdout("user set --disable 37b7086693ec482389799da5dc546fa4", "")
			},
			op: func(ctx context.Context, p *User) error {
				p.SetEnabled(false)
				return p.Flush(ctx)
			},
			wantState: engine.StateFlushed,
			wantLine:  "user set --disable 37b7086693ec482389799da5dc546fa4",
		},
		{
			name:  "destroy deletes the looked up user",
			title: "user1",
			script: func(r *openstacktest.Runner) {
				r.OnStdout("user show --format shell user1 --domain domain1_id", userShell).
					OnStdout("user delete 37b7086693ec482389799da5dc546fa4", "")
			},
			op:        func(ctx context.Context, p *User) error { return p.Destroy(ctx) },
			wantState: engine.StateDestroyed,
			wantLine:  "user delete 37b7086693ec482389799da5dc546fa4",
		},
		{
			name:  "destroy of a missing user is a no-op",
			title: "user1",
			script: func(r *openstacktest.Runner) {
				r.OnFailure("user show --format shell user1 --domain domain1_id", missing)
			},
			op:        func(ctx context.Context, p *User) error { return p.Destroy(ctx) },
			wantState: engine.StateAbsent,
			denyLine:  "user delete",
		},
		{
			name:      "destroy in a missing domain is a no-op",
			title:     "user1::nosuchdomain",
			script:    func(r *openstacktest.Runner) {},
			op:        func(ctx context.Context, p *User) error { return p.Destroy(ctx) },
			wantState: engine.StateUnknown,
			denyLine:  "user delete",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := openstacktest.NewRunner().
				OnStdout("domain list --format csv --quiet", domainListing)
			tt.script(runner)

			attrs := userAttrs()
			if tt.title != "user1" {
				delete(attrs, "domain")
			}
			p := build(t, newBackend(runner), resource(engine.KindUser, tt.title, attrs)).(*User)

			if err := tt.op(context.Background(), p); err != nil {
				t.Fatalf("Expected no error, got %v (calls %v)", err, runner.Lines())
			}
			if p.State() != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, p.State())
			}
			if tt.wantLine != "" && runner.Count(tt.wantLine) != 1 {
				t.Errorf("Expected %q once, got %v", tt.wantLine, runner.Lines())
			}
			if tt.denyLine != "" && runner.Count(tt.denyLine) != 0 {
				t.Errorf("Expected no %q call, got %v", tt.denyLine, runner.Lines())
			}
		})
	}
}
