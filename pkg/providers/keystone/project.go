package keystone

import (
	"context"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// Project manages a project within a domain.
type Project struct {
	base
	spec     *ProjectSpec
	domainID string
}

// NewProject builds a project provider.
func NewProject(res *engine.Resource, backend *Backend) (*Project, error) {
	spec, err := DecodeProject(res)
	if err != nil {
		return nil, err
	}
	p := &Project{spec: spec}
	p.init(res, backend)
	return p, nil
}

// Exists implements engine.Provider. The domain must resolve.
func (p *Project) Exists(ctx context.Context) (bool, error) {
	inst, err := p.find(ctx)
	if err != nil {
		return false, err
	}
	return p.observe(inst), nil
}

func (p *Project) find(ctx context.Context) (*engine.RemoteInstance, error) {
	domainID, err := p.resolveDomain(ctx)
	if err != nil {
		return nil, err
	}
	return absentOnMiss(p.cache.Lookup(ctx, engine.KindProject, p.spec.Name, domainID))
}

func (p *Project) resolveDomain(ctx context.Context) (string, error) {
	if p.domainID == "" {
		domainID, err := p.cache.ResolveDomainID(ctx, p.spec.Domain)
		if err != nil {
			return "", err
		}
		p.domainID = domainID
	}
	return p.domainID, nil
}

// Create implements engine.Provider.
func (p *Project) Create(ctx context.Context) error {
	domainID, err := p.resolveDomain(ctx)
	if err != nil {
		return err
	}

	args := openstack.NewArgs().
		Add(p.spec.Name).
		Toggle(boolOr(p.spec.Enabled, true), "enable", "disable")
	if p.spec.Description != nil {
		args.Opt("description", *p.spec.Description)
	}
	args.Opt("domain", domainID)

	inst, err := p.createShell(ctx, "project", args)
	if err != nil {
		return err
	}
	if inst.DomainID == "" {
		inst.DomainID = domainID
	}
	return p.created(ctx, engine.KindProject, inst)
}

// Destroy implements engine.Provider.
func (p *Project) Destroy(ctx context.Context) error {
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return ignoreNotFound(err)
	}
	if _, err := p.client.Run(ctx, "project", "delete", "", openstack.NewArgs().Add(remote.ID)); err != nil {
		return err
	}
	return p.destroyed(ctx, engine.KindProject, remote.ID)
}

// Sync implements engine.Provider.
func (p *Project) Sync(ctx context.Context) ([]engine.Change, error) {
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
func (p *Project) Flush(ctx context.Context) error {
	return p.flush(ctx, func(ctx context.Context) error {
		remote, err := p.target(ctx, p.find)
		if err != nil {
			return err
		}
		args := openstack.NewArgs()
		p.enabledArgs(args)
		p.descriptionArgs(args)
		args.Add(remote.ID)
		_, err = p.client.Run(ctx, "project", "set", "", args)
		return err
	})
}
