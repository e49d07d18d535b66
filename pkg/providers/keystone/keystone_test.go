package keystone

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/inventory"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
	"github.com/openfroyo/froyo-keystone/pkg/openstack/openstacktest"
)

const domainListing = `"ID","Name","Enabled","Description"
"default","Default",True,"default"
"domain1_id","domain1",True,"domain1"
"domain2_id","domain2",True,"domain2"
`

const roleListing = `"ID","Name"
"admin_id","admin"
"member_id","member"
"reader_id","reader"
`

func newBackend(runner *openstacktest.Runner) *Backend {
	creds := &openstack.Credentials{Scheme: openstack.SchemeV3, AuthConfig: openstack.AuthConfig{
		AuthURL:           "http://127.0.0.1:5000",
		Username:          "test",
		Password:          "abc123",
		SystemScope:       "all",
		UserDomainName:    "Default",
		ProjectDomainName: "Default",
	}}
	client := openstack.NewClient(runner, creds)
	return &Backend{
		Client: client,
		Cache:  inventory.NewCache(inventory.NewCLISource(client), zerolog.Nop()),
		Logger: zerolog.Nop(),
	}
}

func resource(kind engine.Kind, title string, attrs map[string]interface{}) *engine.Resource {
	return &engine.Resource{Kind: kind, Title: title, Ensure: engine.EnsurePresent, Attributes: attrs}
}

func build(t *testing.T, backend *Backend, res *engine.Resource) engine.Provider {
	t.Helper()
	registry, err := NewRegistry(backend)
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}
	p, err := registry.Build(res)
	if err != nil {
		t.Fatalf("Failed to build provider: %v", err)
	}
	return p
}

func expectLines(t *testing.T, runner *openstacktest.Runner, want ...string) {
	t.Helper()
	got := runner.Lines()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Unexpected command lines\n got: %q\nwant: %q", got, want)
	}
}

func TestNewRegistry_CoversEveryKind(t *testing.T) {
	registry, err := NewRegistry(newBackend(openstacktest.NewRunner()))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := len(registry.Kinds()); got != len(engine.AllKinds) {
		t.Errorf("Expected %d kinds, got %d", len(engine.AllKinds), got)
	}
}

func TestConverge_InvalidEnsureMakesNoCalls(t *testing.T) {
	runner := openstacktest.NewRunner()
	res := resource(engine.KindUser, "user1", map[string]interface{}{"password": "secret"})
	res.Ensure = "badvalue"

	result := engine.Converge(context.Background(), build(t, newBackend(runner), res), false)

	if !engine.IsConfigError(result.Error) {
		t.Fatalf("Expected ConfigError, got %v", result.Error)
	}
	if n := len(runner.Calls()); n != 0 {
		t.Errorf("Expected no runner calls, got %v", runner.Lines())
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		res  *engine.Resource
		code string
	}{
		{
			name: "unknown attribute",
			res:  resource(engine.KindUser, "user1", map[string]interface{}{"colour": "blue"}),
			code: engine.ErrCodeInvalidParameter,
		},
		{
			name: "service without type",
			res:  resource(engine.KindService, "nova", nil),
			code: engine.ErrCodeInvalidParameter,
		},
		{
			name: "endpoint without urls",
			res:  resource(engine.KindEndpoint, "RegionOne/nova::compute", nil),
			code: engine.ErrCodeMissingParameter,
		},
		{
			name: "endpoint with bad url",
			res:  resource(engine.KindEndpoint, "RegionOne/nova::compute", map[string]interface{}{"public_url": "not a url"}),
			code: engine.ErrCodeInvalidParameter,
		},
		{
			name: "grant with two scopes",
			res:  resource(engine.KindUserRole, "user1@project1", map[string]interface{}{"project": "p", "domain": "d"}),
			code: engine.ErrCodeAmbiguousScope,
		},
		{
			name: "grant without scope",
			res:  resource(engine.KindUserRole, "user1", nil),
			code: engine.ErrCodeInvalidParameter,
		},
	}

	registry, err := NewRegistry(newBackend(openstacktest.NewRunner()))
	if err != nil {
		t.Fatalf("Failed to build registry: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Build(tt.res)
			if !engine.IsConfigError(err) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if code := err.(*engine.EngineError).Code; code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, code)
			}
		})
	}
}

func TestDecodeUserRole_Titles(t *testing.T) {
	tests := []struct {
		title string
		attrs map[string]interface{}
		want  UserRoleSpec
	}{
		{"user1@project1", nil, UserRoleSpec{User: "user1", Project: "project1"}},
		{"user1::udom@project1::pdom", nil, UserRoleSpec{User: "user1", UserDomain: "udom", Project: "project1", ProjectDomain: "pdom"}},
		{"user1@::domain1", nil, UserRoleSpec{User: "user1", Domain: "domain1"}},
		{"user1@::::all", nil, UserRoleSpec{User: "user1", System: "all"}},
		{"me@example.com@project1", nil, UserRoleSpec{User: "me@example.com", Project: "project1"}},
		{
			"user1::udom@project1::pdom",
			map[string]interface{}{"user_domain": "other", "project_domain": "pother"},
			UserRoleSpec{User: "user1", UserDomain: "other", Project: "project1", ProjectDomain: "pother"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			spec, err := DecodeUserRole(resource(engine.KindUserRole, tt.title, tt.attrs))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			spec.Roles = nil
			if !reflect.DeepEqual(*spec, tt.want) {
				t.Errorf("Expected %+v, got %+v", tt.want, *spec)
			}
		})
	}
}

func TestDecode_TitleDomainOverride(t *testing.T) {
	tests := []struct {
		title  string
		attrs  map[string]interface{}
		name   string
		domain string
	}{
		{"user1", map[string]interface{}{"domain": "domain1"}, "user1", "domain1"},
		{"user1::domain1", nil, "user1", "domain1"},
		{"user1::foobar", map[string]interface{}{"domain": "domain1"}, "user1", "domain1"},
		{"user1", nil, "user1", ""},
	}
	for _, tt := range tests {
		spec, err := DecodeUser(resource(engine.KindUser, tt.title, tt.attrs))
		if err != nil {
			t.Fatalf("DecodeUser(%q) failed: %v", tt.title, err)
		}
		if spec.Name != tt.name || spec.Domain != tt.domain {
			t.Errorf("DecodeUser(%q) = %s::%s, want %s::%s", tt.title, spec.Name, spec.Domain, tt.name, tt.domain)
		}
	}
}

func TestIdentityKeyOf_Duplicates(t *testing.T) {
	tests := []struct {
		name      string
		resources []*engine.Resource
		wantDup   bool
	}{
		{
			name: "domain in title and in parameter",
			resources: []*engine.Resource{
				resource(engine.KindUser, "name::domain_one", nil),
				resource(engine.KindUser, "name", map[string]interface{}{"domain": "domain_one"}),
			},
			wantDup: true,
		},
		{
			name: "different domains",
			resources: []*engine.Resource{
				resource(engine.KindUser, "name::domain_one", nil),
				resource(engine.KindUser, "name::domain_two", nil),
			},
		},
		{
			name: "implicit default domain",
			resources: []*engine.Resource{
				resource(engine.KindProject, "services", nil),
				resource(engine.KindProject, "services::Default", nil),
			},
			wantDup: true,
		},
		{
			name: "grant with and without default domains",
			resources: []*engine.Resource{
				resource(engine.KindUserRole, "nova@services", nil),
				resource(engine.KindUserRole, "nova::Default@services::Default", nil),
			},
			wantDup: true,
		},
		{
			name: "same service name with different types",
			resources: []*engine.Resource{
				resource(engine.KindService, "nova::compute", nil),
				resource(engine.KindService, "nova::compute_legacy", nil),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := inventory.DetectDuplicates(tt.resources, IdentityKeyOf)
			if tt.wantDup && !engine.IsDuplicateResource(err) {
				t.Errorf("Expected DuplicateResourceError, got %v", err)
			}
			if !tt.wantDup && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

func TestAutorequire(t *testing.T) {
	resources := []*engine.Resource{
		resource(engine.KindDomain, "domain1", nil),
		resource(engine.KindRole, "admin", nil),
		resource(engine.KindUser, "nova::domain1", nil),
		resource(engine.KindProject, "services", nil),
		resource(engine.KindService, "nova::compute", nil),
		resource(engine.KindEndpoint, "RegionOne/nova::compute", map[string]interface{}{"public_url": "http://nova:8774"}),
		resource(engine.KindUserRole, "nova::domain1@services", map[string]interface{}{"roles": []string{"admin", "member"}}),
	}

	Autorequire(resources)

	deps := func(res *engine.Resource) []string {
		var out []string
		for _, d := range res.Dependencies {
			out = append(out, d.TargetID)
		}
		return out
	}

	expected := map[string][]string{
		"domain[domain1]":                   nil,
		"user[nova::domain1]":               {"domain[domain1]"},
		"project[services]":                 nil,
		"endpoint[RegionOne/nova::compute]": {"service[nova::compute]"},
		"user_role[nova::domain1@services]": {"user[nova::domain1]", "project[services]", "role[admin]"},
	}
	for _, res := range resources {
		want, ok := expected[res.ID()]
		if !ok {
			continue
		}
		if got := deps(res); strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("%s: expected dependencies %v, got %v", res.ID(), want, got)
		}
	}
}
