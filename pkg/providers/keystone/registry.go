package keystone

import (
	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

// NewRegistry registers one provider variant per kind over backend.
func NewRegistry(backend *Backend) (*engine.Registry, error) {
	factories := map[engine.Kind]engine.ProviderFactory{
		engine.KindDomain: func(res *engine.Resource) (engine.Provider, error) {
			return NewDomain(res, backend)
		},
		engine.KindProject: func(res *engine.Resource) (engine.Provider, error) {
			return NewProject(res, backend)
		},
		engine.KindRole: func(res *engine.Resource) (engine.Provider, error) {
			return NewRole(res, backend)
		},
		engine.KindUser: func(res *engine.Resource) (engine.Provider, error) {
			return NewUser(res, backend)
		},
		engine.KindUserRole: func(res *engine.Resource) (engine.Provider, error) {
			return NewUserRole(res, backend)
		},
		engine.KindService: func(res *engine.Resource) (engine.Provider, error) {
			return NewService(res, backend)
		},
		engine.KindEndpoint: func(res *engine.Resource) (engine.Provider, error) {
			return NewEndpoint(res, backend)
		},
	}

	registry := engine.NewRegistry()
	for _, kind := range engine.AllKinds {
		if err := registry.Register(kind, factories[kind]); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Autorequire adds the implicit dependency edges of each resource on the
// objects it references, when those objects are declared too:
//
//	user, project -> domain
//	user_role     -> user, project or domain, roles
//	endpoint      -> service
//
// Declarations that do not decode are left alone; building their provider
// reports the error.
func Autorequire(resources []*engine.Resource) {
	byKey := make(map[engine.IdentityKey]string, len(resources))
	for _, res := range resources {
		key, ok, err := IdentityKeyOf(res)
		if err != nil || !ok {
			continue
		}
		byKey[normalizeKey(key)] = res.ID()
	}

	require := func(res *engine.Resource, key engine.IdentityKey) {
		if id, ok := byKey[normalizeKey(key)]; ok && id != res.ID() {
			res.DependsOn(id, engine.DependencyRequire)
		}
	}

	for _, res := range resources {
		switch res.Kind {
		case engine.KindUser:
			if spec, err := DecodeUser(res); err == nil {
				require(res, engine.IdentityKey{Kind: engine.KindDomain, Name: domainOrDefault(spec.Domain)})
			}
		case engine.KindProject:
			if spec, err := DecodeProject(res); err == nil {
				require(res, engine.IdentityKey{Kind: engine.KindDomain, Name: domainOrDefault(spec.Domain)})
			}
		case engine.KindUserRole:
			spec, err := DecodeUserRole(res)
			if err != nil {
				continue
			}
			require(res, engine.IdentityKey{Kind: engine.KindUser, Name: spec.User, Domain: spec.UserDomain})
			switch {
			case spec.Project != "":
				require(res, engine.IdentityKey{Kind: engine.KindProject, Name: spec.Project, Domain: spec.ProjectDomain})
			case spec.Domain != "":
				require(res, engine.IdentityKey{Kind: engine.KindDomain, Name: spec.Domain})
			}
			for _, role := range spec.Roles {
				require(res, engine.IdentityKey{Kind: engine.KindRole, Name: role})
			}
		case engine.KindEndpoint:
			if spec, err := DecodeEndpoint(res); err == nil {
				require(res, engine.IdentityKey{Kind: engine.KindService, Name: spec.ServiceName + "::" + spec.ServiceType})
			}
		}
	}
}

// normalizeKey compares domain-scoped kinds with an empty domain as the
// default domain.
func normalizeKey(key engine.IdentityKey) engine.IdentityKey {
	if key.Kind == engine.KindUser || key.Kind == engine.KindProject {
		key.Domain = domainOrDefault(key.Domain)
	}
	return key
}
