package openstack

import (
	"strings"
	"testing"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

func envFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		config     AuthConfig
		env        map[string]string
		wantScheme Scheme
		wantCode   string
	}{
		{
			name: "v2 from environment",
			env: map[string]string{
				"OS_AUTH_URL": "http://127.0.0.1:5000/v2.0", "OS_USERNAME": "admin",
				"OS_PASSWORD": "secret", "OS_TENANT_NAME": "admin",
			},
			wantScheme: SchemeV2,
		},
		{
			name: "v3 inferred from domain qualifier",
			env: map[string]string{
				"OS_AUTH_URL": "http://127.0.0.1:5000/v3", "OS_USERNAME": "admin",
				"OS_PASSWORD": "secret", "OS_PROJECT_NAME": "admin",
				"OS_PROJECT_DOMAIN_NAME": "Default", "OS_USER_DOMAIN_NAME": "Default",
			},
			wantScheme: SchemeV3,
		},
		{
			name: "system scope",
			config: AuthConfig{
				AuthURL: "http://127.0.0.1:5000/v3", UserID: "u1", Password: "secret",
				SystemScope: "all", UserDomainName: "Default",
			},
			wantScheme: SchemeV3,
		},
		{
			name:       "token only",
			config:     AuthConfig{AuthURL: "http://127.0.0.1:5000/v3", Token: "abc", IdentityAPIVersion: "3"},
			wantScheme: SchemeV3,
		},
		{
			name:     "missing auth url",
			config:   AuthConfig{Username: "admin", Password: "secret"},
			wantCode: engine.ErrCodeMissingCredentials,
		},
		{
			name:     "no password or token",
			config:   AuthConfig{AuthURL: "http://127.0.0.1:5000/v3", Username: "admin"},
			wantCode: engine.ErrCodeMissingCredentials,
		},
		{
			name:     "password without user",
			config:   AuthConfig{AuthURL: "http://127.0.0.1:5000/v3", Password: "secret"},
			wantCode: engine.ErrCodeMissingCredentials,
		},
		{
			name: "system and domain scope",
			config: AuthConfig{
				AuthURL: "http://127.0.0.1:5000/v3", Username: "admin", Password: "secret",
				SystemScope: "all", DomainName: "Default",
			},
			wantCode: engine.ErrCodeAmbiguousScope,
		},
		{
			name: "domain and project scope",
			config: AuthConfig{
				AuthURL: "http://127.0.0.1:5000/v3", Username: "admin", Password: "secret",
				DomainName: "Default", ProjectName: "admin",
			},
			wantCode: engine.ErrCodeAmbiguousScope,
		},
		{
			name: "v2 with domain qualifier",
			config: AuthConfig{
				AuthURL: "http://127.0.0.1:5000/v2.0", Username: "admin", Password: "secret",
				UserDomainName: "Default", IdentityAPIVersion: "2.0",
			},
			wantCode: engine.ErrCodeInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := NewResolver(tt.config).WithEnvLookup(envFrom(tt.env)).Resolve()
			if tt.wantCode != "" {
				if !engine.IsConfigError(err) {
					t.Fatalf("Expected ConfigError, got %v", err)
				}
				if code := err.(*engine.EngineError).Code; code != tt.wantCode {
					t.Errorf("Expected code %s, got %s", tt.wantCode, code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if creds.Scheme != tt.wantScheme {
				t.Errorf("Expected scheme %s, got %s", tt.wantScheme, creds.Scheme)
			}
		})
	}
}

func TestResolver_ExplicitOverridesEnvironment(t *testing.T) {
	creds, err := NewResolver(AuthConfig{Username: "explicit"}).
		WithEnvLookup(envFrom(map[string]string{
			"OS_AUTH_URL": "http://env:5000/v3", "OS_USERNAME": "fromenv", "OS_PASSWORD": "secret",
		})).
		Resolve()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if creds.Username != "explicit" {
		t.Errorf("Expected explicit username, got %q", creds.Username)
	}
	if creds.AuthURL != "http://env:5000/v3" {
		t.Errorf("Expected auth URL from environment, got %q", creds.AuthURL)
	}
}

func TestCredentials_EnvIsSortedAndRedacted(t *testing.T) {
	creds, err := NewResolver(AuthConfig{
		AuthURL: "http://127.0.0.1:5000/v3", Username: "admin", Password: "secret",
		ProjectName: "admin", ProjectDomainName: "Default", UserDomainName: "Default",
	}).WithEnvLookup(envFrom(nil)).Resolve()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	env := creds.Env()
	want := []string{
		"OS_AUTH_URL=http://127.0.0.1:5000/v3",
		"OS_IDENTITY_API_VERSION=3",
		"OS_PASSWORD=secret",
		"OS_PROJECT_DOMAIN_NAME=Default",
		"OS_PROJECT_NAME=admin",
		"OS_USERNAME=admin",
		"OS_USER_DOMAIN_NAME=Default",
	}
	if strings.Join(env, ";") != strings.Join(want, ";") {
		t.Errorf("Unexpected env:\n got %v\nwant %v", env, want)
	}

	if creds.Redacted()["password"] != "****" {
		t.Errorf("Expected redacted password, got %q", creds.Redacted()["password"])
	}
}

func TestCredentials_ForPasswordProbe(t *testing.T) {
	creds := &Credentials{Scheme: SchemeV2, AuthConfig: AuthConfig{
		AuthURL: "http://127.0.0.1:5000/v2.0", Username: "admin", Password: "secret", TenantName: "admin",
	}}

	probe := creds.ForPasswordProbe("user1_id", "candidate")
	if probe.Scheme != SchemeV3 {
		t.Errorf("Expected v3 probe, got %s", probe.Scheme)
	}
	if probe.UserID != "user1_id" || probe.Password != "candidate" || probe.UserDomainName != DefaultDomain {
		t.Errorf("Unexpected probe credentials: %+v", probe.AuthConfig)
	}
	if probe.Username != "" || probe.TenantName != "" {
		t.Errorf("Expected the probe to drop admin identity, got %+v", probe.AuthConfig)
	}
}
