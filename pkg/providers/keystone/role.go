package keystone

import (
	"context"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// Role manages a global role. Roles have no mutable attributes.
type Role struct {
	base
	spec *RoleSpec
}

// NewRole builds a role provider.
func NewRole(res *engine.Resource, backend *Backend) (*Role, error) {
	spec, err := DecodeRole(res)
	if err != nil {
		return nil, err
	}
	p := &Role{spec: spec}
	p.init(res, backend)
	return p, nil
}

// Exists implements engine.Provider.
func (p *Role) Exists(ctx context.Context) (bool, error) {
	inst, err := p.find(ctx)
	if err != nil {
		return false, err
	}
	return p.observe(inst), nil
}

func (p *Role) find(ctx context.Context) (*engine.RemoteInstance, error) {
	return absentOnMiss(p.cache.Lookup(ctx, engine.KindRole, p.spec.Name, ""))
}

// Create implements engine.Provider.
func (p *Role) Create(ctx context.Context) error {
	inst, err := p.createShell(ctx, "role", openstack.NewArgs().Add(p.spec.Name))
	if err != nil {
		return err
	}
	return p.created(ctx, engine.KindRole, inst)
}

// Destroy implements engine.Provider.
func (p *Role) Destroy(ctx context.Context) error {
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return ignoreNotFound(err)
	}
	if _, err := p.client.Run(ctx, "role", "delete", "", openstack.NewArgs().Add(remote.ID)); err != nil {
		return err
	}
	return p.destroyed(ctx, engine.KindRole, remote.ID)
}

// Sync implements engine.Provider.
func (p *Role) Sync(ctx context.Context) ([]engine.Change, error) {
	return p.synced()
}

// Flush implements engine.Provider. Nothing about a role is settable.
func (p *Role) Flush(ctx context.Context) error {
	return p.flush(ctx, func(context.Context) error { return nil })
}
