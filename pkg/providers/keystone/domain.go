package keystone

import (
	"context"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// Domain manages an identity domain.
type Domain struct {
	base
	spec *DomainSpec
}

// NewDomain builds a domain provider.
func NewDomain(res *engine.Resource, backend *Backend) (*Domain, error) {
	spec, err := DecodeDomain(res)
	if err != nil {
		return nil, err
	}
	p := &Domain{spec: spec}
	p.init(res, backend)
	return p, nil
}

// Exists implements engine.Provider.
func (p *Domain) Exists(ctx context.Context) (bool, error) {
	inst, err := p.find(ctx)
	if err != nil {
		return false, err
	}
	return p.observe(inst), nil
}

func (p *Domain) find(ctx context.Context) (*engine.RemoteInstance, error) {
	return absentOnMiss(p.cache.Lookup(ctx, engine.KindDomain, p.spec.Name, ""))
}

// Create implements engine.Provider.
func (p *Domain) Create(ctx context.Context) error {
	args := openstack.NewArgs().
		Add(p.spec.Name).
		Toggle(boolOr(p.spec.Enabled, true), "enable", "disable")
	if p.spec.Description != nil {
		args.Opt("description", *p.spec.Description)
	}
	inst, err := p.createShell(ctx, "domain", args)
	if err != nil {
		return err
	}
	return p.created(ctx, engine.KindDomain, inst)
}

// Destroy implements engine.Provider. Keystone refuses to delete an
// enabled domain, so it is disabled first.
func (p *Domain) Destroy(ctx context.Context) error {
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return ignoreNotFound(err)
	}
	if remote.Enabled {
		if _, err := p.client.Run(ctx, "domain", "set", "", openstack.NewArgs().Flag("disable").Add(remote.ID)); err != nil {
			return err
		}
	}
	if _, err := p.client.Run(ctx, "domain", "delete", "", openstack.NewArgs().Add(remote.ID)); err != nil {
		return err
	}
	return p.destroyed(ctx, engine.KindDomain, remote.ID)
}

// Sync implements engine.Provider.
func (p *Domain) Sync(ctx context.Context) ([]engine.Change, error) {
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return nil, err
	}
	if enabled := boolOr(p.spec.Enabled, true); enabled != remote.Enabled {
		p.SetEnabled(enabled)
	}
	if p.spec.Description != nil && *p.spec.Description != remote.Description {
		p.SetDescription(*p.spec.Description)
	}
	return p.synced()
}

// Flush implements engine.Provider.
func (p *Domain) Flush(ctx context.Context) error {
	return p.flush(ctx, func(ctx context.Context) error {
		remote, err := p.target(ctx, p.find)
		if err != nil {
			return err
		}
		args := openstack.NewArgs()
		p.enabledArgs(args)
		p.descriptionArgs(args)
		args.Add(remote.ID)
		_, err = p.client.Run(ctx, "domain", "set", "", args)
		return err
	})
}
