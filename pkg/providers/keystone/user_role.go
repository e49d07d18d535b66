package keystone

import (
	"context"
	"fmt"
	"sort"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// UserRole manages the set of roles one user holds on one scope: a
// project, a domain or the system.
type UserRole struct {
	base
	spec *UserRoleSpec

	userID    string
	scopeFlag string
	scopeID   string

	// current holds the role names granted remotely, sorted
	current []string
	// found is false while the user or its scope is missing
	found  bool
	loaded bool
}

// NewUserRole builds a grant provider.
func NewUserRole(res *engine.Resource, backend *Backend) (*UserRole, error) {
	spec, err := DecodeUserRole(res)
	if err != nil {
		return nil, err
	}
	p := &UserRole{spec: spec}
	p.init(res, backend)
	return p, nil
}

// resolve maps the user and scope to remote IDs. found is false when the
// user or project does not exist yet; unresolvable domains are errors.
func (p *UserRole) resolve(ctx context.Context) (found bool, err error) {
	userDomainID, err := p.cache.ResolveDomainID(ctx, p.spec.UserDomain)
	if err != nil {
		return false, err
	}
	user, err := absentOnMiss(p.cache.Lookup(ctx, engine.KindUser, p.spec.User, userDomainID))
	if err != nil || user == nil {
		return false, err
	}
	p.userID = user.ID

	switch {
	case p.spec.System != "":
		p.scopeFlag, p.scopeID = "system", p.spec.System
	case p.spec.Domain != "":
		domainID, err := p.cache.ResolveDomainID(ctx, p.spec.Domain)
		if err != nil {
			return false, err
		}
		p.scopeFlag, p.scopeID = "domain", domainID
	default:
		projectDomainID, err := p.cache.ResolveDomainID(ctx, p.spec.ProjectDomain)
		if err != nil {
			return false, err
		}
		project, err := absentOnMiss(p.cache.Lookup(ctx, engine.KindProject, p.spec.Project, projectDomainID))
		if err != nil || project == nil {
			return false, err
		}
		p.scopeFlag, p.scopeID = "project", project.ID
	}
	return true, nil
}

// Exists implements engine.Provider. The grant exists when the user holds
// any role on the scope.
func (p *UserRole) Exists(ctx context.Context) (bool, error) {
	p.loaded = false
	if err := p.load(ctx); err != nil {
		return false, err
	}
	return len(p.current) > 0, nil
}

// load resolves the grant and reads its current roles once.
func (p *UserRole) load(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	found, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	p.current = nil
	if found {
		current, err := p.assignments(ctx)
		if err != nil {
			return err
		}
		p.current = current
	}
	p.found, p.loaded = found, true
	p.Observe(len(p.current) > 0)
	return nil
}

// assignments lists the role names the user holds on the scope.
func (p *UserRole) assignments(ctx context.Context) ([]string, error) {
	args := openstack.NewArgs().Flag("quiet").Opt("user", p.userID).Opt(p.scopeFlag, p.scopeID)
	out, err := p.client.Run(ctx, "role assignment", "list", openstack.FormatCSV, args)
	if err != nil {
		return nil, err
	}
	rows, err := out.Rows()
	if err != nil {
		return nil, err
	}

	roles, err := p.cache.Instances(ctx, engine.KindRole)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(roles))
	for _, r := range roles {
		names[r.ID] = r.Name
	}
	var current []string
	for _, row := range rows {
		role := row["role"]
		if name, ok := names[role]; ok {
			role = name
		}
		current = append(current, role)
	}
	return uniqueSorted(current), nil
}

func (p *UserRole) missing() error {
	return engine.NewNotFoundError(
		fmt.Sprintf("user %s or its scope does not exist", p.spec.User), nil).
		WithCode(engine.ErrCodeDanglingReference)
}

// Roles returns the roles currently granted.
func (p *UserRole) Roles() []string {
	out := make([]string, len(p.current))
	copy(out, p.current)
	return out
}

// SetRoles queues the complete desired role set.
func (p *UserRole) SetRoles(roles []string) {
	p.queue("roles", p.Roles(), uniqueSorted(roles), false)
}

// Create implements engine.Provider. Each declared role is added.
func (p *UserRole) Create(ctx context.Context) error {
	if p.userID == "" || p.scopeID == "" {
		found, err := p.resolve(ctx)
		if err != nil {
			return err
		}
		if !found {
			return p.missing()
		}
	}
	for _, role := range p.spec.Roles {
		if err := p.grant(ctx, "add", role); err != nil {
			return err
		}
	}
	p.current = uniqueSorted(append([]string(nil), p.spec.Roles...))
	p.found, p.loaded = true, true
	if p.State() == engine.StateUnknown {
		p.Observe(false)
	}
	return p.Transition(engine.StateCreated)
}

// Destroy implements engine.Provider. Every granted role is removed. A
// missing user or scope holds no roles.
func (p *UserRole) Destroy(ctx context.Context) error {
	if err := p.load(ctx); err != nil {
		return ignoreNotFound(err)
	}
	if len(p.current) == 0 {
		return nil
	}
	for _, role := range p.Roles() {
		if err := p.grant(ctx, "remove", role); err != nil {
			return err
		}
	}
	p.current = nil
	return p.Transition(engine.StateDestroyed)
}

// Sync implements engine.Provider. Extra remote roles are revoked.
func (p *UserRole) Sync(ctx context.Context) ([]engine.Change, error) {
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	if !equalStrings(p.current, p.spec.Roles) {
		p.SetRoles(p.spec.Roles)
	}
	return p.synced()
}

// Flush implements engine.Provider. The client has no batch form, so each
// role delta takes one call.
func (p *UserRole) Flush(ctx context.Context) error {
	return p.flush(ctx, func(ctx context.Context) error {
		if err := p.load(ctx); err != nil {
			return err
		}
		if !p.found {
			return p.missing()
		}
		v, _ := p.pending.Get("roles")
		desired, _ := v.([]string)
		add, remove := diffRoles(p.current, desired)
		for _, role := range add {
			if err := p.grant(ctx, "add", role); err != nil {
				return err
			}
		}
		for _, role := range remove {
			if err := p.grant(ctx, "remove", role); err != nil {
				return err
			}
		}
		p.current = desired
		return nil
	})
}

func (p *UserRole) grant(ctx context.Context, verb, role string) error {
	args := openstack.NewArgs().Opt("user", p.userID).Opt(p.scopeFlag, p.scopeID).Add(role)
	_, err := p.client.Run(ctx, "role", verb, "", args)
	return err
}

// diffRoles returns the roles to add and to remove, both sorted.
func diffRoles(current, desired []string) (add, remove []string) {
	have := make(map[string]bool, len(current))
	for _, r := range current {
		have[r] = true
	}
	want := make(map[string]bool, len(desired))
	for _, r := range desired {
		want[r] = true
		if !have[r] {
			add = append(add, r)
		}
	}
	for _, r := range current {
		if !want[r] {
			remove = append(remove, r)
		}
	}
	sort.Strings(add)
	sort.Strings(remove)
	return add, remove
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
