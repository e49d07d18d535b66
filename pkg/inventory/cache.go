// Package inventory memoizes remote instance listings for one
// reconciliation run and resolves names to remote IDs.
package inventory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// showKinds are looked up one object at a time instead of listed.
var showKinds = map[engine.Kind]bool{
	engine.KindUser: true,
}

// domainScoped kinds are addressed by name within a domain.
var domainScoped = map[engine.Kind]bool{
	engine.KindUser:    true,
	engine.KindProject: true,
}

// IsDomainScoped reports whether objects of kind live inside a domain.
func IsDomainScoped(kind engine.Kind) bool {
	return domainScoped[kind]
}

type nameKey struct {
	name     string
	domainID string
}

// Cache is the instance cache of one run. It is safe for concurrent use.
// Listings are filled at most once per kind until Reset.
type Cache struct {
	source Source
	logger zerolog.Logger

	mu       sync.RWMutex
	listings map[engine.Kind][]*engine.RemoteInstance
	index    map[engine.Kind]map[nameKey]*engine.RemoteInstance
	lookups  map[engine.Kind]map[nameKey]*engine.RemoteInstance
}

// NewCache creates an empty cache over source.
func NewCache(source Source, logger zerolog.Logger) *Cache {
	c := &Cache{
		source: source,
		logger: logger.With().Str("component", "inventory").Logger(),
	}
	c.resetAll()
	return c
}

func (c *Cache) resetAll() {
	c.listings = make(map[engine.Kind][]*engine.RemoteInstance)
	c.index = make(map[engine.Kind]map[nameKey]*engine.RemoteInstance)
	c.lookups = make(map[engine.Kind]map[nameKey]*engine.RemoteInstance)
}

// Instances returns every remote instance of kind, listing it on first use.
func (c *Cache) Instances(ctx context.Context, kind engine.Kind) ([]*engine.RemoteInstance, error) {
	c.mu.RLock()
	listing, ok := c.listings[kind]
	c.mu.RUnlock()
	if ok {
		return copyInstances(listing), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	listing, err := c.fillLocked(ctx, kind)
	if err != nil {
		return nil, err
	}
	return copyInstances(listing), nil
}

func (c *Cache) fillLocked(ctx context.Context, kind engine.Kind) ([]*engine.RemoteInstance, error) {
	if listing, ok := c.listings[kind]; ok {
		return listing, nil
	}

	listing, err := c.source.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		listing = []*engine.RemoteInstance{}
	}

	idx := make(map[nameKey]*engine.RemoteInstance, len(listing))
	for _, inst := range listing {
		if inst.Name != "" {
			idx[nameKey{inst.Name, inst.DomainID}] = inst
		}
	}
	c.listings[kind] = listing
	c.index[kind] = idx

	c.logger.Debug().Str("kind", string(kind)).Int("count", len(listing)).Msg("listing cached")
	return listing, nil
}

// Lookup finds an instance by name within a domain ID. Hits and misses
// are memoized for the run. A miss is a NotFoundError.
func (c *Cache) Lookup(ctx context.Context, kind engine.Kind, name, domainID string) (*engine.RemoteInstance, error) {
	key := nameKey{name, domainID}

	c.mu.RLock()
	inst, found, known := c.peekLocked(kind, key)
	c.mu.RUnlock()
	if known {
		return lookupResult(kind, name, domainID, inst, found)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if inst, found, known := c.peekLocked(kind, key); known {
		return lookupResult(kind, name, domainID, inst, found)
	}

	if !showKinds[kind] {
		if _, err := c.fillLocked(ctx, kind); err != nil {
			return nil, err
		}
		inst, found = c.index[kind][key]
		return lookupResult(kind, name, domainID, inst, found)
	}

	inst, err := c.source.Show(ctx, kind, name, domainID)
	if err != nil {
		if engine.IsNotFound(err) {
			c.memoLocked(kind, key, nil)
			return nil, err
		}
		return nil, err
	}
	c.memoLocked(kind, key, inst)
	return inst, nil
}

// peekLocked answers from memoized state. known is false when a remote
// call is needed.
func (c *Cache) peekLocked(kind engine.Kind, key nameKey) (inst *engine.RemoteInstance, found, known bool) {
	if memo, ok := c.lookups[kind]; ok {
		if inst, ok := memo[key]; ok {
			return inst, inst != nil, true
		}
	}
	if idx, ok := c.index[kind]; ok {
		inst, found := idx[key]
		return inst, found, true
	}
	return nil, false, false
}

func (c *Cache) memoLocked(kind engine.Kind, key nameKey, inst *engine.RemoteInstance) {
	memo, ok := c.lookups[kind]
	if !ok {
		memo = make(map[nameKey]*engine.RemoteInstance)
		c.lookups[kind] = memo
	}
	memo[key] = inst
}

func lookupResult(kind engine.Kind, name, domainID string, inst *engine.RemoteInstance, found bool) (*engine.RemoteInstance, error) {
	if found && inst != nil {
		return inst, nil
	}
	msg := fmt.Sprintf("no %s named %q", kind, name)
	if domainID != "" {
		msg = fmt.Sprintf("%s in domain %s", msg, domainID)
	}
	return nil, engine.NewNotFoundError(msg, nil)
}

// ResolveDomainID maps a domain name or ID to its ID. An empty value means
// the implicit default domain. IDs are matched before names. A miss is a
// NotFoundError with code DANGLING_REFERENCE.
func (c *Cache) ResolveDomainID(ctx context.Context, nameOrID string) (string, error) {
	if nameOrID == "" {
		nameOrID = openstack.DefaultDomain
	}

	domains, err := c.Instances(ctx, engine.KindDomain)
	if err != nil {
		return "", err
	}
	for _, d := range domains {
		if d.ID == nameOrID {
			return d.ID, nil
		}
	}
	for _, d := range domains {
		if d.Name == nameOrID {
			return d.ID, nil
		}
	}
	return "", engine.NewNotFoundError(fmt.Sprintf("domain %q does not exist", nameOrID), nil).
		WithCode(engine.ErrCodeDanglingReference)
}

// ResolveID resolves the domain of a domain-scoped kind, then looks the
// object up and returns its ID.
func (c *Cache) ResolveID(ctx context.Context, kind engine.Kind, name, domain string) (string, error) {
	inst, err := c.Resolve(ctx, kind, name, domain)
	if err != nil {
		return "", err
	}
	return inst.ID, nil
}

// Resolve is ResolveID returning the whole instance.
func (c *Cache) Resolve(ctx context.Context, kind engine.Kind, name, domain string) (*engine.RemoteInstance, error) {
	domainID := ""
	if domainScoped[kind] {
		id, err := c.ResolveDomainID(ctx, domain)
		if err != nil {
			return nil, err
		}
		domainID = id
	}
	return c.Lookup(ctx, kind, name, domainID)
}

// Record adds a freshly created instance so later lookups in the run are
// answered without a remote call.
func (c *Cache) Record(kind engine.Kind, inst *engine.RemoteInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if listing, ok := c.listings[kind]; ok {
		c.listings[kind] = append(listing, inst)
		if inst.Name != "" {
			c.index[kind][nameKey{inst.Name, inst.DomainID}] = inst
		}
	}
	if inst.Name != "" {
		c.memoLocked(kind, nameKey{inst.Name, inst.DomainID}, inst)
	}
}

// Forget removes a destroyed instance.
func (c *Cache) Forget(kind engine.Kind, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if listing, ok := c.listings[kind]; ok {
		kept := listing[:0:0]
		for _, inst := range listing {
			if inst.ID != id {
				kept = append(kept, inst)
			}
		}
		c.listings[kind] = kept
	}
	for key, inst := range c.index[kind] {
		if inst.ID == id {
			delete(c.index[kind], key)
		}
	}
	for key, inst := range c.lookups[kind] {
		if inst != nil && inst.ID == id {
			c.lookups[kind][key] = nil
		}
	}
}

// Reset clears the given kinds, or everything when none are given.
func (c *Cache) Reset(kinds ...engine.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(kinds) == 0 {
		c.resetAll()
		return
	}
	for _, kind := range kinds {
		delete(c.listings, kind)
		delete(c.index, kind)
		delete(c.lookups, kind)
	}
}

func copyInstances(in []*engine.RemoteInstance) []*engine.RemoteInstance {
	out := make([]*engine.RemoteInstance, len(in))
	copy(out, in)
	return out
}
