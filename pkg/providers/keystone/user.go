package keystone

import (
	"context"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// User manages a user within a domain.
type User struct {
	base
	spec     *UserSpec
	domainID string
}

// NewUser builds a user provider.
func NewUser(res *engine.Resource, backend *Backend) (*User, error) {
	spec, err := DecodeUser(res)
	if err != nil {
		return nil, err
	}
	p := &User{spec: spec}
	p.init(res, backend)
	return p, nil
}

// Exists implements engine.Provider. The domain must resolve.
func (p *User) Exists(ctx context.Context) (bool, error) {
	inst, err := p.find(ctx)
	if err != nil {
		return false, err
	}
	return p.observe(inst), nil
}

func (p *User) find(ctx context.Context) (*engine.RemoteInstance, error) {
	domainID, err := p.resolveDomain(ctx)
	if err != nil {
		return nil, err
	}
	return absentOnMiss(p.cache.Lookup(ctx, engine.KindUser, p.spec.Name, domainID))
}

// resolveDomain resolves the declared domain once per provider.
func (p *User) resolveDomain(ctx context.Context) (string, error) {
	if p.domainID == "" {
		domainID, err := p.cache.ResolveDomainID(ctx, p.spec.Domain)
		if err != nil {
			return "", err
		}
		p.domainID = domainID
	}
	return p.domainID, nil
}

// Create implements engine.Provider. The domain is passed as declared.
func (p *User) Create(ctx context.Context) error {
	domainID, err := p.resolveDomain(ctx)
	if err != nil {
		return err
	}

	args := openstack.NewArgs().
		Add(p.spec.Name).
		Toggle(boolOr(p.spec.Enabled, true), "enable", "disable")
	if p.spec.Password != "" {
		args.Opt("password", p.spec.Password)
	}
	if p.spec.Description != nil {
		args.Opt("description", *p.spec.Description)
	}
	if p.spec.Email != nil {
		args.Opt("email", *p.spec.Email)
	}
	args.Opt("domain", domainOrDefault(p.spec.Domain))

	inst, err := p.createShell(ctx, "user", args)
	if err != nil {
		return err
	}
	if inst.DomainID == "" {
		inst.DomainID = domainID
	}
	return p.created(ctx, engine.KindUser, inst)
}

// Destroy implements engine.Provider. A missing user is already destroyed.
func (p *User) Destroy(ctx context.Context) error {
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return ignoreNotFound(err)
	}
	if _, err := p.client.Run(ctx, "user", "delete", "", openstack.NewArgs().Add(remote.ID)); err != nil {
		return err
	}
	return p.destroyed(ctx, engine.KindUser, remote.ID)
}

// Password returns the password the remote user currently has, as far as
// it can be known: the declared password when it authenticates, else "".
// With replace_password false the declared value is returned unprobed.
func (p *User) Password(ctx context.Context) (string, error) {
	if p.spec.Password == "" || !boolOr(p.spec.ReplacePassword, true) {
		return p.spec.Password, nil
	}
	remote, err := p.target(ctx, p.find)
	if err != nil {
		return "", ignoreNotFound(err)
	}
	ok, err := p.client.VerifyPassword(ctx, remote.ID, p.spec.Password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return p.spec.Password, nil
}

// SetEmail queues the email.
func (p *User) SetEmail(email string) {
	before := ""
	if p.remote != nil {
		before = p.remote.Email
	}
	p.queue("email", before, email, false)
}

// SetPassword queues a new password.
func (p *User) SetPassword(password string) {
	p.queue("password", nil, password, true)
}

// Sync implements engine.Provider.
func (p *User) Sync(ctx context.Context) ([]engine.Change, error) {
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
	if p.spec.Email != nil && *p.spec.Email != remote.Email {
		p.SetEmail(*p.spec.Email)
	}
	if p.spec.Password != "" {
		current, err := p.Password(ctx)
		if err != nil {
			return nil, err
		}
		if current != p.spec.Password {
			p.SetPassword(p.spec.Password)
		}
	}
	return p.synced()
}

// Flush implements engine.Provider. All pending attributes go out in one
// user set call.
func (p *User) Flush(ctx context.Context) error {
	return p.flush(ctx, func(ctx context.Context) error {
		remote, err := p.target(ctx, p.find)
		if err != nil {
			return err
		}
		args := openstack.NewArgs()
		p.enabledArgs(args)
		if password, ok := p.pendingString("password"); ok {
			args.Opt("password", password)
		}
		p.descriptionArgs(args)
		if email, ok := p.pendingString("email"); ok {
			args.Opt("email", email)
		}
		args.Add(remote.ID)
		_, err = p.client.Run(ctx, "user", "set", "", args)
		return err
	})
}
