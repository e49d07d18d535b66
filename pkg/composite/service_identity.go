// Package composite expands higher-level intents into primitive identity
// resources.
package composite

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

var validate = validator.New()

// Defaults applied by Expand.
const (
	DefaultTenant      = "services"
	DefaultRole        = "admin"
	DefaultSystemScope = "all"
	DefaultRegion      = "RegionOne"
)

// ServiceIdentity declares everything an OpenStack service needs in the
// identity service: its user, its role grants, its catalog entry and its
// endpoints.
type ServiceIdentity struct {
	Name               string   `yaml:"name" json:"name" validate:"required"`
	Ensure             string   `yaml:"ensure,omitempty" json:"ensure,omitempty"`
	Password           string   `yaml:"password,omitempty" json:"password,omitempty"`
	AuthName           string   `yaml:"auth_name,omitempty" json:"auth_name,omitempty"`
	Email              string   `yaml:"email,omitempty" json:"email,omitempty"`
	Tenant             string   `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	Roles              []string `yaml:"roles,omitempty" json:"roles,omitempty" validate:"dive,required"`
	SystemScope        string   `yaml:"system_scope,omitempty" json:"system_scope,omitempty"`
	SystemRoles        []string `yaml:"system_roles,omitempty" json:"system_roles,omitempty" validate:"dive,required"`
	ServiceName        string   `yaml:"service_name,omitempty" json:"service_name,omitempty"`
	ServiceType        string   `yaml:"service_type,omitempty" json:"service_type,omitempty"`
	ServiceDescription string   `yaml:"service_description,omitempty" json:"service_description,omitempty"`
	PublicURL          string   `yaml:"public_url,omitempty" json:"public_url,omitempty" validate:"omitempty,url"`
	InternalURL        string   `yaml:"internal_url,omitempty" json:"internal_url,omitempty" validate:"omitempty,url"`
	AdminURL           string   `yaml:"admin_url,omitempty" json:"admin_url,omitempty" validate:"omitempty,url"`
	Region             string   `yaml:"region,omitempty" json:"region,omitempty"`
	UserDomain         string   `yaml:"user_domain,omitempty" json:"user_domain,omitempty"`
	ProjectDomain      string   `yaml:"project_domain,omitempty" json:"project_domain,omitempty"`
	DefaultDomain      string   `yaml:"default_domain,omitempty" json:"default_domain,omitempty"`

	ConfigureUser     *bool `yaml:"configure_user,omitempty" json:"configure_user,omitempty"`
	ConfigureUserRole *bool `yaml:"configure_user_role,omitempty" json:"configure_user_role,omitempty"`
	ConfigureService  *bool `yaml:"configure_service,omitempty" json:"configure_service,omitempty"`
	ConfigureEndpoint *bool `yaml:"configure_endpoint,omitempty" json:"configure_endpoint,omitempty"`
}

// ID returns the catalog source name of the intent.
func (s *ServiceIdentity) ID() string {
	return fmt.Sprintf("service_identity[%s]", s.Name)
}

func enabled(v *bool) bool {
	return v == nil || *v
}

func (s *ServiceIdentity) configError(code, format string, args ...interface{}) error {
	return engine.NewConfigError(fmt.Sprintf(format, args...), nil).
		WithCode(code).
		WithResource(s.ID())
}

// Expand produces the primitive resources of the intent in declaration
// order: domains, roles, user, service, endpoint, project grant and, when
// system roles are given, the system grant.
//
// Domains and roles are shared with other intents and stay present when
// the intent is absent.
func (s *ServiceIdentity) Expand() ([]*engine.Resource, error) {
	if err := validate.Struct(s); err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("invalid %s: %v", s.ID(), err), err).
			WithCode(engine.ErrCodeInvalidParameter).
			WithResource(s.ID())
	}

	ensure, err := engine.ParseEnsure(s.Ensure)
	if err != nil {
		return nil, err.(*engine.EngineError).WithResource(s.ID())
	}

	configureUser := enabled(s.ConfigureUser)
	configureUserRole := enabled(s.ConfigureUserRole)
	configureService := enabled(s.ConfigureService)
	configureEndpoint := enabled(s.ConfigureEndpoint)

	if configureService && s.ServiceType == "" {
		return nil, s.configError(engine.ErrCodeMissingParameter,
			"%s: service_type is required to configure the service", s.ID())
	}
	if configureEndpoint {
		if s.ServiceType == "" {
			return nil, s.configError(engine.ErrCodeMissingParameter,
				"%s: service_type is required to configure the endpoint", s.ID())
		}
		if s.PublicURL == "" || s.InternalURL == "" || s.AdminURL == "" {
			return nil, s.configError(engine.ErrCodeMissingParameter,
				"%s: public_url, internal_url and admin_url are required to configure the endpoint", s.ID())
		}
	}

	authName := or(s.AuthName, s.Name)
	email := or(s.Email, authName+"@localhost")
	tenant := or(s.Tenant, DefaultTenant)
	roles := s.Roles
	if len(roles) == 0 {
		roles = []string{DefaultRole}
	}
	systemScope := or(s.SystemScope, DefaultSystemScope)
	serviceName := or(s.ServiceName, s.Name)
	serviceDescription := or(s.ServiceDescription, s.Name+" service")
	region := or(s.Region, DefaultRegion)
	userDomain := or(s.UserDomain, s.DefaultDomain)
	projectDomain := or(s.ProjectDomain, s.DefaultDomain)

	var out []*engine.Resource
	add := func(kind engine.Kind, title string, ens engine.Ensure, attrs map[string]interface{}) {
		out = append(out, &engine.Resource{
			Kind:       kind,
			Title:      title,
			Ensure:     ens,
			Attributes: attrs,
			Source:     s.ID(),
		})
	}

	seenDomain := make(map[string]bool)
	addDomain := func(domain string) {
		if domain == "" || seenDomain[domain] {
			return
		}
		seenDomain[domain] = true
		add(engine.KindDomain, domain, engine.EnsurePresent, nil)
	}
	if configureUser || configureUserRole {
		addDomain(userDomain)
	}
	if configureUserRole {
		addDomain(projectDomain)
	}

	if configureUserRole {
		seenRole := make(map[string]bool)
		for _, role := range append(append([]string{}, roles...), s.SystemRoles...) {
			if seenRole[role] {
				continue
			}
			seenRole[role] = true
			add(engine.KindRole, role, engine.EnsurePresent, nil)
		}
	}

	if configureUser {
		attrs := map[string]interface{}{
			"enabled": true,
			"email":   email,
		}
		if s.Password != "" {
			attrs["password"] = s.Password
		}
		if userDomain != "" {
			attrs["domain"] = userDomain
		}
		add(engine.KindUser, authName, ensure, attrs)
	}

	serviceTitle := serviceName + "::" + s.ServiceType
	if configureService {
		add(engine.KindService, serviceTitle, ensure, map[string]interface{}{
			"description": serviceDescription,
		})
	}

	if configureEndpoint {
		add(engine.KindEndpoint, region+"/"+serviceTitle, ensure, map[string]interface{}{
			"region":       region,
			"public_url":   s.PublicURL,
			"internal_url": s.InternalURL,
			"admin_url":    s.AdminURL,
		})
	}

	if configureUserRole {
		attrs := map[string]interface{}{"roles": append([]string{}, roles...)}
		if userDomain != "" {
			attrs["user_domain"] = userDomain
		}
		if projectDomain != "" {
			attrs["project_domain"] = projectDomain
		}
		add(engine.KindUserRole, authName+"@"+tenant, ensure, attrs)

		if len(s.SystemRoles) > 0 {
			attrs := map[string]interface{}{"roles": append([]string{}, s.SystemRoles...)}
			if userDomain != "" {
				attrs["user_domain"] = userDomain
			}
			add(engine.KindUserRole, authName+"@::::"+systemScope, ensure, attrs)
		}
	}

	return out, nil
}

// ExpandAll expands several intents into one resource list.
func ExpandAll(intents []*ServiceIdentity) ([]*engine.Resource, error) {
	var out []*engine.Resource
	for _, intent := range intents {
		resources, err := intent.Expand()
		if err != nil {
			return nil, err
		}
		out = append(out, resources...)
	}
	return out, nil
}

func or(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
