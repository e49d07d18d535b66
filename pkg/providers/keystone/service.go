package keystone

import (
	"context"
	"fmt"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/inventory"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// Service manages a catalog service, identified by name and type.
type Service struct {
	base
	spec *ServiceSpec
}

// NewService builds a service provider.
func NewService(res *engine.Resource, backend *Backend) (*Service, error) {
	spec, err := DecodeService(res)
	if err != nil {
		return nil, err
	}
	p := &Service{spec: spec}
	p.init(res, backend)
	return p, nil
}

// findService returns the service with name and type, or nil.
func findService(ctx context.Context, cache *inventory.Cache, name, typ string) (*engine.RemoteInstance, error) {
	services, err := cache.Instances(ctx, engine.KindService)
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		if s.Name == name && s.Field("type") == typ {
			return s, nil
		}
	}
	return nil, nil
}

// Exists implements engine.Provider.
func (p *Service) Exists(ctx context.Context) (bool, error) {
	inst, err := p.find(ctx)
	if err != nil {
		return false, err
	}
	return p.observe(inst), nil
}

func (p *Service) find(ctx context.Context) (*engine.RemoteInstance, error) {
	return findService(ctx, p.cache, p.spec.Name, p.spec.Type)
}

// Create implements engine.Provider.
func (p *Service) Create(ctx context.Context) error {
	args := openstack.NewArgs().Opt("name", p.spec.Name)
	if p.spec.Description != nil {
		args.Opt("description", *p.spec.Description)
	}
	args.Toggle(boolOr(p.spec.Enabled, true), "enable", "disable").Add(p.spec.Type)

	inst, err := p.createShell(ctx, "service", args)
	if err != nil {
		return err
	}
	if inst.Field("type") == "" {
		inst.Fields["type"] = p.spec.Type
	}
	return p.created(ctx, engine.KindService, inst)
}

// Destroy implements engine.Provider.
func (p *Service) Destroy(ctx context.Context) error {
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return ignoreNotFound(err)
	}
	if _, err := p.client.Run(ctx, "service", "delete", "", openstack.NewArgs().Add(remote.ID)); err != nil {
		return err
	}
	return p.destroyed(ctx, engine.KindService, remote.ID)
}

// Sync implements engine.Provider.
func (p *Service) Sync(ctx context.Context) ([]engine.Change, error) {
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return nil, err
	}
	if p.spec.Description != nil && *p.spec.Description != remote.Description {
		p.SetDescription(*p.spec.Description)
	}
	if enabled := boolOr(p.spec.Enabled, true); enabled != remote.Enabled {
		p.SetEnabled(enabled)
	}
	return p.synced()
}

// Flush implements engine.Provider.
func (p *Service) Flush(ctx context.Context) error {
	return p.flush(ctx, func(ctx context.Context) error {
		remote, err := p.target(ctx, p.find)
		if err != nil {
			return err
		}
		args := openstack.NewArgs()
		p.descriptionArgs(args)
		p.enabledArgs(args)
		args.Add(remote.ID)
		_, err = p.client.Run(ctx, "service", "set", "", args)
		return err
	})
}

// serviceID resolves a service for a dependent object. A missing service is
// a NotFoundError.
func serviceID(ctx context.Context, cache *inventory.Cache, name, typ string) (string, error) {
	inst, err := findService(ctx, cache, name, typ)
	if err != nil {
		return "", err
	}
	if inst == nil {
		return "", engine.NewNotFoundError(fmt.Sprintf("no service %s of type %s", name, typ), nil).
			WithCode(engine.ErrCodeDanglingReference)
	}
	return inst.ID, nil
}
