package keystone

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

var validate = validator.New()

// DomainSpec is the typed form of a domain declaration. Title: name.
type DomainSpec struct {
	Name        string  `yaml:"name" validate:"required"`
	Enabled     *bool   `yaml:"enabled"`
	Description *string `yaml:"description"`
}

// ProjectSpec is the typed form of a project declaration. Title: name[::domain].
type ProjectSpec struct {
	Name        string  `yaml:"name" validate:"required"`
	Domain      string  `yaml:"domain"`
	Enabled     *bool   `yaml:"enabled"`
	Description *string `yaml:"description"`
}

// RoleSpec is the typed form of a role declaration. Title: name.
type RoleSpec struct {
	Name string `yaml:"name" validate:"required"`
}

// UserSpec is the typed form of a user declaration. Title: name[::domain].
type UserSpec struct {
	Name            string  `yaml:"name" validate:"required"`
	Domain          string  `yaml:"domain"`
	Enabled         *bool   `yaml:"enabled"`
	Password        string  `yaml:"password"`
	ReplacePassword *bool   `yaml:"replace_password"`
	Email           *string `yaml:"email"`
	Description     *string `yaml:"description"`
}

// UserRoleSpec is the typed form of the grants of one user on one scope.
// Title: user[::udomain]@project[::pdomain], user@::domain or user@::::system.
type UserRoleSpec struct {
	User          string   `yaml:"user" validate:"required"`
	UserDomain    string   `yaml:"user_domain"`
	Project       string   `yaml:"project"`
	ProjectDomain string   `yaml:"project_domain"`
	Domain        string   `yaml:"domain"`
	System        string   `yaml:"system"`
	Roles         []string `yaml:"roles" validate:"dive,required"`
}

// ServiceSpec is the typed form of a service declaration. Title: name::type.
type ServiceSpec struct {
	Name        string  `yaml:"name" validate:"required"`
	Type        string  `yaml:"type" validate:"required"`
	Description *string `yaml:"description"`
	Enabled     *bool   `yaml:"enabled"`
}

// EndpointSpec is the typed form of the endpoints of one service in one
// region. Title: region/name::type.
type EndpointSpec struct {
	Region      string `yaml:"region" validate:"required"`
	ServiceName string `yaml:"service_name" validate:"required"`
	ServiceType string `yaml:"service_type" validate:"required"`
	PublicURL   string `yaml:"public_url" validate:"omitempty,url"`
	InternalURL string `yaml:"internal_url" validate:"omitempty,url"`
	AdminURL    string `yaml:"admin_url" validate:"omitempty,url"`
}

// URLs returns the declared URL per interface.
func (s *EndpointSpec) URLs() map[string]string {
	urls := make(map[string]string, 3)
	if s.PublicURL != "" {
		urls["public"] = s.PublicURL
	}
	if s.InternalURL != "" {
		urls["internal"] = s.InternalURL
	}
	if s.AdminURL != "" {
		urls["admin"] = s.AdminURL
	}
	return urls
}

// decodeSpec fills out from the attribute map. Unknown attributes are
// rejected.
func decodeSpec(res *engine.Resource, out interface{}) error {
	if len(res.Attributes) == 0 {
		return nil
	}
	data, err := yaml.Marshal(res.Attributes)
	if err != nil {
		return invalid(res, fmt.Sprintf("attributes cannot be encoded: %v", err))
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return invalid(res, fmt.Sprintf("invalid attributes: %v", err))
	}
	return nil
}

func validateSpec(res *engine.Resource, spec interface{}) error {
	if err := validate.Struct(spec); err != nil {
		return engine.NewConfigError(fmt.Sprintf("invalid %s: %v", res.ID(), err), err).
			WithCode(engine.ErrCodeInvalidParameter).
			WithResource(res.ID())
	}
	return nil
}

func invalid(res *engine.Resource, msg string) error {
	return engine.NewConfigError(msg, nil).
		WithCode(engine.ErrCodeInvalidParameter).
		WithResource(res.ID())
}

// splitDomain splits "name::domain".
func splitDomain(title string) (name, domain string) {
	if i := strings.Index(title, "::"); i >= 0 {
		return title[:i], title[i+2:]
	}
	return title, ""
}

// DecodeDomain parses a domain declaration.
func DecodeDomain(res *engine.Resource) (*DomainSpec, error) {
	spec := &DomainSpec{}
	if err := decodeSpec(res, spec); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		spec.Name = res.Title
	}
	return spec, validateSpec(res, spec)
}

// DecodeProject parses a project declaration.
func DecodeProject(res *engine.Resource) (*ProjectSpec, error) {
	spec := &ProjectSpec{}
	if err := decodeSpec(res, spec); err != nil {
		return nil, err
	}
	name, domain := splitDomain(res.Title)
	if spec.Name == "" {
		spec.Name = name
	}
	if spec.Domain == "" {
		spec.Domain = domain
	}
	return spec, validateSpec(res, spec)
}

// DecodeRole parses a role declaration.
func DecodeRole(res *engine.Resource) (*RoleSpec, error) {
	spec := &RoleSpec{}
	if err := decodeSpec(res, spec); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		spec.Name = res.Title
	}
	return spec, validateSpec(res, spec)
}

// DecodeUser parses a user declaration.
func DecodeUser(res *engine.Resource) (*UserSpec, error) {
	spec := &UserSpec{}
	if err := decodeSpec(res, spec); err != nil {
		return nil, err
	}
	name, domain := splitDomain(res.Title)
	if spec.Name == "" {
		spec.Name = name
	}
	if spec.Domain == "" {
		spec.Domain = domain
	}
	return spec, validateSpec(res, spec)
}

// DecodeUserRole parses a grant declaration. Exactly one of project,
// domain and system scope must result.
func DecodeUserRole(res *engine.Resource) (*UserRoleSpec, error) {
	spec := &UserRoleSpec{}
	if err := decodeSpec(res, spec); err != nil {
		return nil, err
	}

	i := strings.LastIndex(res.Title, "@")
	if i < 0 && spec.User == "" {
		return nil, invalid(res, fmt.Sprintf("user_role title %q must look like user@project", res.Title))
	}
	if i >= 0 {
		user, udomain := splitDomain(res.Title[:i])
		scope := res.Title[i+1:]
		var project, pdomain, domain, system string
		switch {
		case strings.HasPrefix(scope, "::::"):
			system = strings.TrimPrefix(scope, "::::")
		case strings.HasPrefix(scope, "::"):
			domain = strings.TrimPrefix(scope, "::")
		default:
			project, pdomain = splitDomain(scope)
		}
		if spec.User == "" {
			spec.User = user
		}
		if spec.UserDomain == "" {
			spec.UserDomain = udomain
		}
		if spec.Project == "" && spec.Domain == "" && spec.System == "" {
			spec.Project, spec.Domain, spec.System = project, domain, system
		}
		if spec.ProjectDomain == "" {
			spec.ProjectDomain = pdomain
		}
	}

	scopes := 0
	for _, s := range []string{spec.Project, spec.Domain, spec.System} {
		if s != "" {
			scopes++
		}
	}
	if scopes != 1 {
		return nil, engine.NewConfigError(
			fmt.Sprintf("%s must name exactly one of project, domain or system scope", res.ID()), nil).
			WithCode(engine.ErrCodeAmbiguousScope).
			WithResource(res.ID())
	}

	spec.Roles = uniqueSorted(spec.Roles)
	return spec, validateSpec(res, spec)
}

// DecodeService parses a service declaration.
func DecodeService(res *engine.Resource) (*ServiceSpec, error) {
	spec := &ServiceSpec{}
	if err := decodeSpec(res, spec); err != nil {
		return nil, err
	}
	name, typ := splitDomain(res.Title)
	if spec.Name == "" {
		spec.Name = name
	}
	if spec.Type == "" {
		spec.Type = typ
	}
	return spec, validateSpec(res, spec)
}

// DecodeEndpoint parses an endpoint declaration. At least one URL is
// required when the endpoint is present.
func DecodeEndpoint(res *engine.Resource) (*EndpointSpec, error) {
	spec := &EndpointSpec{}
	if err := decodeSpec(res, spec); err != nil {
		return nil, err
	}
	region, service := "", res.Title
	if i := strings.Index(res.Title, "/"); i >= 0 {
		region, service = res.Title[:i], res.Title[i+1:]
	}
	name, typ := splitDomain(service)
	if spec.Region == "" {
		spec.Region = region
	}
	if spec.ServiceName == "" {
		spec.ServiceName = name
	}
	if spec.ServiceType == "" {
		spec.ServiceType = typ
	}
	if err := validateSpec(res, spec); err != nil {
		return nil, err
	}
	if res.Ensure != engine.EnsureAbsent && len(spec.URLs()) == 0 {
		return nil, engine.NewConfigError(
			fmt.Sprintf("%s needs at least one of public_url, internal_url or admin_url", res.ID()), nil).
			WithCode(engine.ErrCodeMissingParameter).
			WithResource(res.ID())
	}
	return spec, nil
}

// IdentityKeyOf returns the key under which two declarations denote the
// same remote object. It implements inventory.KeyFunc.
func IdentityKeyOf(res *engine.Resource) (engine.IdentityKey, bool, error) {
	key := engine.IdentityKey{Kind: res.Kind}
	switch res.Kind {
	case engine.KindDomain:
		spec, err := DecodeDomain(res)
		if err != nil {
			return key, false, err
		}
		key.Name = spec.Name
	case engine.KindProject:
		spec, err := DecodeProject(res)
		if err != nil {
			return key, false, err
		}
		key.Name, key.Domain = spec.Name, spec.Domain
	case engine.KindRole:
		spec, err := DecodeRole(res)
		if err != nil {
			return key, false, err
		}
		key.Name = spec.Name
	case engine.KindUser:
		spec, err := DecodeUser(res)
		if err != nil {
			return key, false, err
		}
		key.Name, key.Domain = spec.Name, spec.Domain
	case engine.KindUserRole:
		spec, err := DecodeUserRole(res)
		if err != nil {
			return key, false, err
		}
		key.Name = grantKey(spec)
	case engine.KindService:
		spec, err := DecodeService(res)
		if err != nil {
			return key, false, err
		}
		key.Name = spec.Name + "::" + spec.Type
	case engine.KindEndpoint:
		spec, err := DecodeEndpoint(res)
		if err != nil {
			return key, false, err
		}
		key.Name = spec.Region + "/" + spec.ServiceName + "::" + spec.ServiceType
	default:
		return key, false, nil
	}
	return key, true, nil
}

// grantKey renders a grant with its domains normalized.
func grantKey(spec *UserRoleSpec) string {
	user := spec.User + "::" + domainOrDefault(spec.UserDomain)
	switch {
	case spec.System != "":
		return user + "@::::" + spec.System
	case spec.Domain != "":
		return user + "@::" + spec.Domain
	default:
		return user + "@" + spec.Project + "::" + domainOrDefault(spec.ProjectDomain)
	}
}

func domainOrDefault(domain string) string {
	if domain == "" {
		return openstack.DefaultDomain
	}
	return domain
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
