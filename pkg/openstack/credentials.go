// Package openstack runs the openstack command line client: it resolves
// credentials, issues commands, parses their output and classifies their
// failures.
package openstack

import (
	"os"
	"sort"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

// Scheme is the identity API authentication style.
type Scheme string

const (
	// SchemeV2 is legacy tenant-scoped authentication.
	SchemeV2 Scheme = "2.0"

	// SchemeV3 is domain and project scoped authentication.
	SchemeV3 Scheme = "3"
)

// DefaultDomain is the name of the implicit domain.
const DefaultDomain = "Default"

// AuthConfig holds explicitly configured credentials. Empty fields fall
// back to the matching OS_* environment variable.
type AuthConfig struct {
	AuthURL            string `yaml:"auth_url" json:"auth_url,omitempty" validate:"omitempty,url"`
	Username           string `yaml:"username" json:"username,omitempty"`
	UserID             string `yaml:"user_id" json:"user_id,omitempty"`
	Password           string `yaml:"password" json:"-"`
	Token              string `yaml:"token" json:"-"`
	ProjectName        string `yaml:"project_name" json:"project_name,omitempty"`
	ProjectID          string `yaml:"project_id" json:"project_id,omitempty"`
	TenantName         string `yaml:"tenant_name" json:"tenant_name,omitempty"`
	ProjectDomainName  string `yaml:"project_domain_name" json:"project_domain_name,omitempty"`
	ProjectDomainID    string `yaml:"project_domain_id" json:"project_domain_id,omitempty"`
	UserDomainName     string `yaml:"user_domain_name" json:"user_domain_name,omitempty"`
	UserDomainID       string `yaml:"user_domain_id" json:"user_domain_id,omitempty"`
	DomainName         string `yaml:"domain_name" json:"domain_name,omitempty"`
	DomainID           string `yaml:"domain_id" json:"domain_id,omitempty"`
	SystemScope        string `yaml:"system_scope" json:"system_scope,omitempty"`
	IdentityAPIVersion string `yaml:"identity_api_version" json:"identity_api_version,omitempty" validate:"omitempty,oneof=2 2.0 3"`
	RegionName         string `yaml:"region_name" json:"region_name,omitempty"`
}

// Credentials is a resolved authentication context.
type Credentials struct {
	Scheme Scheme
	AuthConfig
}

// Resolver builds Credentials from explicit configuration and the
// environment, with explicit values taking precedence per field.
type Resolver struct {
	config    AuthConfig
	lookupEnv func(string) (string, bool)
}

// NewResolver creates a resolver over the given explicit configuration.
func NewResolver(config AuthConfig) *Resolver {
	return &Resolver{config: config, lookupEnv: os.LookupEnv}
}

// WithEnvLookup replaces the environment lookup. Used by tests.
func (r *Resolver) WithEnvLookup(lookup func(string) (string, bool)) *Resolver {
	r.lookupEnv = lookup
	return r
}

// Resolve merges the sources and validates the result.
func (r *Resolver) Resolve() (*Credentials, error) {
	c := r.config
	pick := func(field *string, env string) {
		if *field != "" {
			return
		}
		if v, ok := r.lookupEnv(env); ok {
			*field = v
		}
	}

	pick(&c.AuthURL, "OS_AUTH_URL")
	pick(&c.Username, "OS_USERNAME")
	pick(&c.UserID, "OS_USER_ID")
	pick(&c.Password, "OS_PASSWORD")
	pick(&c.Token, "OS_TOKEN")
	pick(&c.ProjectName, "OS_PROJECT_NAME")
	pick(&c.ProjectID, "OS_PROJECT_ID")
	pick(&c.TenantName, "OS_TENANT_NAME")
	pick(&c.ProjectDomainName, "OS_PROJECT_DOMAIN_NAME")
	pick(&c.ProjectDomainID, "OS_PROJECT_DOMAIN_ID")
	pick(&c.UserDomainName, "OS_USER_DOMAIN_NAME")
	pick(&c.UserDomainID, "OS_USER_DOMAIN_ID")
	pick(&c.DomainName, "OS_DOMAIN_NAME")
	pick(&c.DomainID, "OS_DOMAIN_ID")
	pick(&c.SystemScope, "OS_SYSTEM_SCOPE")
	pick(&c.IdentityAPIVersion, "OS_IDENTITY_API_VERSION")
	pick(&c.RegionName, "OS_REGION_NAME")

	return newCredentials(c)
}

func newCredentials(c AuthConfig) (*Credentials, error) {
	if c.AuthURL == "" {
		return nil, engine.NewConfigError("auth URL is required", nil).
			WithCode(engine.ErrCodeMissingCredentials)
	}
	if c.Password == "" && c.Token == "" {
		return nil, engine.NewConfigError("either a password or a token is required", nil).
			WithCode(engine.ErrCodeMissingCredentials)
	}
	if c.Password != "" && c.Username == "" && c.UserID == "" {
		return nil, engine.NewConfigError("password authentication requires a username or user ID", nil).
			WithCode(engine.ErrCodeMissingCredentials)
	}

	domainQualified := c.ProjectDomainName != "" || c.ProjectDomainID != "" ||
		c.UserDomainName != "" || c.UserDomainID != "" ||
		c.DomainName != "" || c.DomainID != "" || c.SystemScope != ""

	var scheme Scheme
	switch c.IdentityAPIVersion {
	case "":
		scheme = SchemeV2
		if domainQualified {
			scheme = SchemeV3
		}
	case "2", "2.0":
		scheme = SchemeV2
	case "3":
		scheme = SchemeV3
	default:
		return nil, engine.NewConfigError("unsupported identity API version "+c.IdentityAPIVersion, nil).
			WithCode(engine.ErrCodeInvalidParameter)
	}

	if scheme == SchemeV2 && domainQualified {
		return nil, engine.NewConfigError("domain and system scopes require identity API version 3", nil).
			WithCode(engine.ErrCodeInvalidParameter)
	}

	projectScoped := c.ProjectName != "" || c.ProjectID != "" || c.TenantName != ""
	domainScoped := c.DomainName != "" || c.DomainID != ""

	if c.SystemScope != "" && (projectScoped || domainScoped) {
		return nil, engine.NewConfigError("system scope cannot be combined with a project or domain scope", nil).
			WithCode(engine.ErrCodeAmbiguousScope)
	}
	if domainScoped && projectScoped {
		return nil, engine.NewConfigError("domain scope cannot be combined with a project scope", nil).
			WithCode(engine.ErrCodeAmbiguousScope)
	}

	return &Credentials{Scheme: scheme, AuthConfig: c}, nil
}

// Env renders the OS_* environment for the client process, sorted by name.
func (c *Credentials) Env() []string {
	vars := map[string]string{
		"OS_AUTH_URL":             c.AuthURL,
		"OS_USERNAME":             c.Username,
		"OS_USER_ID":              c.UserID,
		"OS_PASSWORD":             c.Password,
		"OS_TOKEN":                c.Token,
		"OS_PROJECT_NAME":         c.ProjectName,
		"OS_PROJECT_ID":           c.ProjectID,
		"OS_TENANT_NAME":          c.TenantName,
		"OS_PROJECT_DOMAIN_NAME":  c.ProjectDomainName,
		"OS_PROJECT_DOMAIN_ID":    c.ProjectDomainID,
		"OS_USER_DOMAIN_NAME":     c.UserDomainName,
		"OS_USER_DOMAIN_ID":       c.UserDomainID,
		"OS_DOMAIN_NAME":          c.DomainName,
		"OS_DOMAIN_ID":            c.DomainID,
		"OS_SYSTEM_SCOPE":         c.SystemScope,
		"OS_REGION_NAME":          c.RegionName,
		"OS_IDENTITY_API_VERSION": string(c.Scheme),
	}
	if c.Password == "" && c.Token != "" {
		vars["OS_AUTH_TYPE"] = "token"
	}

	keys := make([]string, 0, len(vars))
	for k, v := range vars {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// Redacted returns the credentials as log fields with secrets masked.
func (c *Credentials) Redacted() map[string]string {
	out := map[string]string{
		"scheme":   string(c.Scheme),
		"auth_url": c.AuthURL,
	}
	for k, v := range map[string]string{
		"username":            c.Username,
		"user_id":             c.UserID,
		"project_name":        c.ProjectName,
		"project_id":          c.ProjectID,
		"tenant_name":         c.TenantName,
		"project_domain_name": c.ProjectDomainName,
		"user_domain_name":    c.UserDomainName,
		"domain_name":         c.DomainName,
		"system_scope":        c.SystemScope,
		"region_name":         c.RegionName,
	} {
		if v != "" {
			out[k] = v
		}
	}
	if c.Password != "" {
		out["password"] = redactedValue
	}
	if c.Token != "" {
		out["token"] = redactedValue
	}
	return out
}

// ForPasswordProbe returns v3 credentials that authenticate as the given
// user with a candidate password, unscoped.
func (c *Credentials) ForPasswordProbe(userID, password string) *Credentials {
	return &Credentials{
		Scheme: SchemeV3,
		AuthConfig: AuthConfig{
			AuthURL:        c.AuthURL,
			UserID:         userID,
			Password:       password,
			UserDomainName: DefaultDomain,
			RegionName:     c.RegionName,
		},
	}
}

// WithToken returns credentials that authenticate with an issued token and
// keep the scope of c. The password identity is dropped.
func (c *Credentials) WithToken(token string) *Credentials {
	return &Credentials{
		Scheme: c.Scheme,
		AuthConfig: AuthConfig{
			AuthURL:           c.AuthURL,
			Token:             token,
			ProjectName:       c.ProjectName,
			ProjectID:         c.ProjectID,
			TenantName:        c.TenantName,
			ProjectDomainName: c.ProjectDomainName,
			ProjectDomainID:   c.ProjectDomainID,
			DomainName:        c.DomainName,
			DomainID:          c.DomainID,
			SystemScope:       c.SystemScope,
			RegionName:        c.RegionName,
		},
	}
}
