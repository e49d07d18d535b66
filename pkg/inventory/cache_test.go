package inventory

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
	"github.com/openfroyo/froyo-keystone/pkg/openstack/openstacktest"
)

const domainListing = `"ID","Name","Enabled","Description"
"default","Default",True,"The default domain"
"domain1_id","domain1",True,"Domain one"
"domain2_id","domain2",False,""
`

func newTestCache(runner *openstacktest.Runner) *Cache {
	creds := &openstack.Credentials{Scheme: openstack.SchemeV3, AuthConfig: openstack.AuthConfig{
		AuthURL: "http://127.0.0.1:5000/v3", Username: "admin", Password: "secret",
		ProjectName: "admin", UserDomainName: "Default", ProjectDomainName: "Default",
	}}
	client := openstack.NewClient(runner, creds)
	return NewCache(NewCLISource(client), zerolog.Nop())
}

func TestCache_InstancesAreMemoized(t *testing.T) {
	runner := openstacktest.NewRunner().OnStdout("domain list --format csv --quiet", domainListing)
	cache := newTestCache(runner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		domains, err := cache.Instances(ctx, engine.KindDomain)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(domains) != 3 {
			t.Fatalf("Expected 3 domains, got %d", len(domains))
		}
	}
	if n := runner.Count("domain list"); n != 1 {
		t.Errorf("Expected 1 listing call, got %d", n)
	}

	cache.Reset(engine.KindRole)
	if _, err := cache.Instances(ctx, engine.KindDomain); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := runner.Count("domain list"); n != 1 {
		t.Errorf("Expected reset of another kind to keep the listing, got %d calls", n)
	}

	cache.Reset()
	if _, err := cache.Instances(ctx, engine.KindDomain); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := runner.Count("domain list"); n != 2 {
		t.Errorf("Expected a fresh listing after reset, got %d calls", n)
	}
}

func TestCache_ResolveDomainThenShow(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnStdout("domain list --format csv --quiet", domainListing).
		OnStdout("user show --format shell user1 --domain domain1_id", `domain_id="domain1_id"
email="user1@example.com"
enabled="True"
id="user1_id"
name="user1"
`)
	cache := newTestCache(runner)
	ctx := context.Background()

	domainID, err := cache.ResolveDomainID(ctx, "domain1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if domainID != "domain1_id" {
		t.Fatalf("Expected domain1_id, got %s", domainID)
	}

	inst, err := cache.Lookup(ctx, engine.KindUser, "user1", domainID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if inst.ID != "user1_id" || inst.Email != "user1@example.com" || !inst.Enabled {
		t.Errorf("Unexpected instance %+v", inst)
	}

	id, err := cache.ResolveID(ctx, engine.KindUser, "user1", "domain1")
	if err != nil || id != "user1_id" {
		t.Errorf("Expected user1_id, got %q, %v", id, err)
	}
	if n := runner.Count("user show"); n != 1 {
		t.Errorf("Expected the show to be memoized, got %d calls", n)
	}
}

func TestCache_ResolveDomainID(t *testing.T) {
	runner := openstacktest.NewRunner().OnStdout("domain list --format csv --quiet", domainListing)
	cache := newTestCache(runner)
	ctx := context.Background()

	tests := []struct {
		in   string
		want string
	}{
		{"", "default"},
		{"Default", "default"},
		{"domain2_id", "domain2_id"},
		{"domain2", "domain2_id"},
	}
	for _, tt := range tests {
		got, err := cache.ResolveDomainID(ctx, tt.in)
		if err != nil {
			t.Errorf("ResolveDomainID(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveDomainID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	_, err := cache.ResolveDomainID(ctx, "nosuchdomain")
	if !engine.IsNotFound(err) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	if code := err.(*engine.EngineError).Code; code != engine.ErrCodeDanglingReference {
		t.Errorf("Expected DANGLING_REFERENCE, got %s", code)
	}
}

func TestCache_LookupMissIsMemoized(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnFailure("user show --format shell ghost --domain default", "No user with a name or ID of 'ghost' exists.")
	cache := newTestCache(runner)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cache.Lookup(ctx, engine.KindUser, "ghost", "default"); !engine.IsNotFound(err) {
			t.Fatalf("Expected NotFoundError, got %v", err)
		}
	}
	if n := len(runner.Calls()); n != 1 {
		t.Errorf("Expected 1 call, got %d", n)
	}
}

func TestCache_LookupPropagatesFailures(t *testing.T) {
	runner := openstacktest.NewRunner().
		OnFailure("user show --format shell user1 --domain default", "Internal Server Error (HTTP 500)")
	cache := newTestCache(runner)

	_, err := cache.Lookup(context.Background(), engine.KindUser, "user1", "default")
	if !engine.IsExecutionError(err) {
		t.Errorf("Expected ExecutionError, got %v", err)
	}
}

func TestCache_RecordAndForget(t *testing.T) {
	runner := openstacktest.NewRunner().OnStdout("role list --format csv --quiet", "\"ID\",\"Name\"\n\"r1\",\"member\"\n")
	cache := newTestCache(runner)
	ctx := context.Background()

	if _, err := cache.Lookup(ctx, engine.KindRole, "admin", ""); !engine.IsNotFound(err) {
		t.Fatalf("Expected NotFoundError before create, got %v", err)
	}

	cache.Record(engine.KindRole, &engine.RemoteInstance{ID: "r2", Name: "admin"})

	inst, err := cache.Lookup(ctx, engine.KindRole, "admin", "")
	if err != nil || inst.ID != "r2" {
		t.Fatalf("Expected recorded instance, got %v, %v", inst, err)
	}
	roles, _ := cache.Instances(ctx, engine.KindRole)
	if len(roles) != 2 {
		t.Errorf("Expected recorded instance in listing, got %d", len(roles))
	}

	cache.Forget(engine.KindRole, "r2")
	if _, err := cache.Lookup(ctx, engine.KindRole, "admin", ""); !engine.IsNotFound(err) {
		t.Errorf("Expected NotFoundError after forget, got %v", err)
	}
	if n := runner.Count("role list"); n != 1 {
		t.Errorf("Expected 1 listing call, got %d", n)
	}
}

func TestCache_RecordWithoutListing(t *testing.T) {
	runner := openstacktest.NewRunner()
	cache := newTestCache(runner)

	cache.Record(engine.KindUser, &engine.RemoteInstance{ID: "u1", Name: "user1", DomainID: "default"})

	inst, err := cache.Lookup(context.Background(), engine.KindUser, "user1", "default")
	if err != nil || inst.ID != "u1" {
		t.Fatalf("Expected recorded user, got %v, %v", inst, err)
	}
	if n := len(runner.Calls()); n != 0 {
		t.Errorf("Expected no calls, got %v", runner.Lines())
	}
}
