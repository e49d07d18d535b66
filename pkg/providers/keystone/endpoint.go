package keystone

import (
	"context"
	"sort"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
)

// interfaces in the order calls are issued.
var interfaces = []string{"public", "internal", "admin"}

// Endpoint manages the endpoints of one service in one region, one remote
// object per interface.
type Endpoint struct {
	base
	spec *EndpointSpec

	// current maps interface to the remote endpoint
	current map[string]*engine.RemoteInstance
	loaded  bool
}

// NewEndpoint builds an endpoint provider.
func NewEndpoint(res *engine.Resource, backend *Backend) (*Endpoint, error) {
	spec, err := DecodeEndpoint(res)
	if err != nil {
		return nil, err
	}
	p := &Endpoint{spec: spec, current: make(map[string]*engine.RemoteInstance)}
	p.init(res, backend)
	return p, nil
}

// Exists implements engine.Provider. The group exists when any of its
// interfaces does.
func (p *Endpoint) Exists(ctx context.Context) (bool, error) {
	p.loaded = false
	if err := p.load(ctx); err != nil {
		return false, err
	}
	return p.remote != nil, nil
}

// load reads the interfaces of the group once.
func (p *Endpoint) load(ctx context.Context) error {
	if p.loaded {
		return nil
	}
	endpoints, err := p.cache.Instances(ctx, engine.KindEndpoint)
	if err != nil {
		return err
	}
	p.current = make(map[string]*engine.RemoteInstance)
	var first *engine.RemoteInstance
	for _, ep := range endpoints {
		if ep.Field("region") != p.spec.Region ||
			ep.Field("service_name") != p.spec.ServiceName ||
			ep.Field("service_type") != p.spec.ServiceType {
			continue
		}
		iface := ep.Field("interface")
		if _, seen := p.current[iface]; seen {
			continue
		}
		p.current[iface] = ep
		if first == nil {
			first = ep
		}
	}
	p.loaded = true
	p.observe(first)
	return nil
}

// Create implements engine.Provider. One endpoint is created per declared
// interface.
func (p *Endpoint) Create(ctx context.Context) error {
	sid, err := serviceID(ctx, p.cache, p.spec.ServiceName, p.spec.ServiceType)
	if err != nil {
		return err
	}
	urls := p.spec.URLs()
	var last *engine.RemoteInstance
	for _, iface := range interfaces {
		url, ok := urls[iface]
		if !ok {
			continue
		}
		inst, err := p.createInterface(ctx, sid, iface, url)
		if err != nil {
			return err
		}
		last = inst
	}
	p.remote = last
	p.loaded = true
	if p.State() == engine.StateUnknown {
		p.Observe(false)
	}
	return p.Transition(engine.StateCreated)
}

func (p *Endpoint) createInterface(ctx context.Context, sid, iface, url string) (*engine.RemoteInstance, error) {
	args := openstack.NewArgs().Opt("region", p.spec.Region).Add(sid, iface, url)
	inst, err := p.createShell(ctx, "endpoint", args)
	if err != nil {
		return nil, err
	}
	for k, v := range map[string]string{
		"region":       p.spec.Region,
		"service_name": p.spec.ServiceName,
		"service_type": p.spec.ServiceType,
		"interface":    iface,
		"url":          url,
	} {
		if inst.Fields[k] == "" {
			inst.Fields[k] = v
		}
	}
	p.cache.Record(engine.KindEndpoint, inst)
	p.current[iface] = inst
	p.log(ctx).Info().Str("id", inst.ID).Str("interface", iface).Msg("created")
	return inst, nil
}

// Destroy implements engine.Provider. Every interface is deleted.
func (p *Endpoint) Destroy(ctx context.Context) error {
	if err := p.load(ctx); err != nil {
		return err
	}
	if len(p.current) == 0 {
		return nil
	}
	for _, iface := range p.presentInterfaces() {
		id := p.current[iface].ID
		if _, err := p.client.Run(ctx, "endpoint", "delete", "", openstack.NewArgs().Add(id)); err != nil {
			return err
		}
		p.cache.Forget(engine.KindEndpoint, id)
		delete(p.current, iface)
	}
	p.remote = nil
	return p.Transition(engine.StateDestroyed)
}

// SetURL queues the URL of one interface.
func (p *Endpoint) SetURL(iface, url string) {
	before := ""
	if ep, ok := p.current[iface]; ok {
		before = ep.Field("url")
	}
	p.queue(iface+"_url", before, url, false)
}

// Sync implements engine.Provider. Missing interfaces and changed URLs are
// queued.
func (p *Endpoint) Sync(ctx context.Context) ([]engine.Change, error) {
	if err := p.load(ctx); err != nil {
		return nil, err
	}
	urls := p.spec.URLs()
	for _, iface := range interfaces {
		url, ok := urls[iface]
		if !ok {
			continue
		}
		if ep, exists := p.current[iface]; exists && ep.Field("url") == url {
			continue
		}
		p.SetURL(iface, url)
	}
	return p.synced()
}

// Flush implements engine.Provider. Each interface takes its own call:
// endpoint set for an existing one, endpoint create for a missing one.
func (p *Endpoint) Flush(ctx context.Context) error {
	return p.flush(ctx, func(ctx context.Context) error {
		if err := p.load(ctx); err != nil {
			return err
		}
		var sid string
		for _, iface := range interfaces {
			url, ok := p.pendingString(iface + "_url")
			if !ok {
				continue
			}
			if ep, exists := p.current[iface]; exists {
				args := openstack.NewArgs().Opt("url", url).Add(ep.ID)
				if _, err := p.client.Run(ctx, "endpoint", "set", "", args); err != nil {
					return err
				}
				ep.Fields["url"] = url
				continue
			}
			if sid == "" {
				id, err := serviceID(ctx, p.cache, p.spec.ServiceName, p.spec.ServiceType)
				if err != nil {
					return err
				}
				sid = id
			}
			if _, err := p.createInterface(ctx, sid, iface, url); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Endpoint) presentInterfaces() []string {
	out := make([]string, 0, len(p.current))
	for iface := range p.current {
		out = append(out, iface)
	}
	sort.Strings(out)
	return out
}
