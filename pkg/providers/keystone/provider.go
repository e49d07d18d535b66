// Package keystone implements one engine.Provider per identity kind on top
// of the openstack client and the run's instance cache.
package keystone

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/inventory"
	"github.com/openfroyo/froyo-keystone/pkg/openstack"
	"github.com/openfroyo/froyo-keystone/pkg/telemetry"
)

// Backend is what every provider of a run shares.
type Backend struct {
	Client *openstack.Client
	Cache  *inventory.Cache
	Logger zerolog.Logger
}

// base carries the lifecycle, the remote view and the pending change set
// common to all kinds.
type base struct {
	engine.Lifecycle

	res     *engine.Resource
	client  *openstack.Client
	cache   *inventory.Cache
	logger  zerolog.Logger
	pending *engine.PendingChangeSet
	changes []engine.Change

	// remote is the object found by the last probe, nil when absent
	remote *engine.RemoteInstance
}

func (b *base) init(res *engine.Resource, backend *Backend) {
	b.res = res
	b.client = backend.Client
	b.cache = backend.Cache
	b.logger = backend.Logger
	b.pending = engine.NewPendingChangeSet()
}

// Resource implements engine.Provider.
func (b *base) Resource() *engine.Resource {
	return b.res
}

// observe records a lookup result.
func (b *base) observe(inst *engine.RemoteInstance) bool {
	b.remote = inst
	b.Observe(inst != nil)
	return inst != nil
}

// target returns the remote object, looking it up with find when no
// lookup has found it yet. A missing object is a NotFoundError.
func (b *base) target(ctx context.Context, find func(context.Context) (*engine.RemoteInstance, error)) (*engine.RemoteInstance, error) {
	if b.remote == nil {
		inst, err := find(ctx)
		if err != nil {
			return nil, err
		}
		b.observe(inst)
	}
	if b.remote == nil {
		return nil, engine.NewNotFoundError(fmt.Sprintf("%s does not exist", b.res.ID()), nil).
			WithCode(engine.ErrCodeObjectNotFound)
	}
	return b.remote, nil
}

// log returns the resource logger of ctx, falling back to the backend one.
func (b *base) log(ctx context.Context) *zerolog.Logger {
	l := telemetry.ContextLogger(ctx, b.logger).With().
		Str("component", "provider").
		Str("resource", b.res.ID()).
		Logger()
	return &l
}

// queue records one pending attribute change.
func (b *base) queue(attribute string, before, after interface{}, sensitive bool) {
	b.pending.Set(attribute, after)
	for i := range b.changes {
		if b.changes[i].Attribute == attribute {
			b.changes[i].After = after
			return
		}
	}
	b.changes = append(b.changes, engine.Change{
		Attribute: attribute,
		Before:    before,
		After:     after,
		Sensitive: sensitive,
	})
}

// SetEnabled queues the enabled flag.
func (b *base) SetEnabled(enabled bool) {
	before := false
	if b.remote != nil {
		before = b.remote.Enabled
	}
	b.queue("enabled", before, enabled, false)
}

// SetDescription queues the description.
func (b *base) SetDescription(description string) {
	before := ""
	if b.remote != nil {
		before = b.remote.Description
	}
	b.queue("description", before, description, false)
}

// synced ends a Sync: it moves to UPDATED when anything is pending and
// returns the queued changes.
func (b *base) synced() ([]engine.Change, error) {
	if b.pending.Empty() {
		return nil, nil
	}
	if b.State() != engine.StateUpdated {
		if err := b.Transition(engine.StateUpdated); err != nil {
			return nil, err
		}
	}
	out := make([]engine.Change, len(b.changes))
	copy(out, b.changes)
	return out, nil
}

// flush applies the pending set with apply, clears it and moves to FLUSHED.
// An empty set issues no call.
//
// Without a prior lookup and with nothing pending, flush is a no-op.
func (b *base) flush(ctx context.Context, apply func(ctx context.Context) error) error {
	if !b.pending.Empty() {
		if err := apply(ctx); err != nil {
			return err
		}
		b.pending.Clear()
		b.changes = nil
	}
	if b.State() == engine.StateUnknown {
		return nil
	}
	return b.Transition(engine.StateFlushed)
}

// pendingString returns a queued string value.
func (b *base) pendingString(attribute string) (string, bool) {
	v, ok := b.pending.Get(attribute)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// pendingBool returns a queued bool value.
func (b *base) pendingBool(attribute string) (bool, bool) {
	v, ok := b.pending.Get(attribute)
	if !ok {
		return false, false
	}
	enabled, _ := v.(bool)
	return enabled, true
}

func (b *base) enabledArgs(args *openstack.Args) {
	if enabled, ok := b.pendingBool("enabled"); ok {
		args.Toggle(enabled, "enable", "disable")
	}
}

func (b *base) descriptionArgs(args *openstack.Args) {
	if description, ok := b.pendingString("description"); ok {
		args.Opt("description", description)
	}
}

// created records a new remote object and moves to CREATED. A create
// issued without a prior lookup counts as creating an absent object.
func (b *base) created(ctx context.Context, kind engine.Kind, inst *engine.RemoteInstance) error {
	b.cache.Record(kind, inst)
	b.remote = inst
	b.log(ctx).Info().Str("id", inst.ID).Msg("created")
	if b.State() == engine.StateUnknown {
		b.Observe(false)
	}
	return b.Transition(engine.StateCreated)
}

// destroyed forgets a deleted remote object and moves to DESTROYED.
func (b *base) destroyed(ctx context.Context, kind engine.Kind, id string) error {
	b.cache.Forget(kind, id)
	b.remote = nil
	b.log(ctx).Info().Str("id", id).Msg("destroyed")
	if b.State() == engine.StateUnknown {
		b.Observe(true)
	}
	return b.Transition(engine.StateDestroyed)
}

// createShell runs `<noun> create --format shell args` and parses the
// created object.
func (b *base) createShell(ctx context.Context, noun string, args *openstack.Args) (*engine.RemoteInstance, error) {
	out, err := b.client.Run(ctx, noun, "create", openstack.FormatShell, args)
	if err != nil {
		return nil, err
	}
	fields, err := out.Shell()
	if err != nil {
		return nil, err
	}
	inst := inventory.InstanceFromFields(fields)
	if inst.ID == "" {
		return nil, engine.NewExecutionError(fmt.Sprintf("%s create returned no id", noun), nil).
			WithCode(engine.ErrCodeUnparseableOutput).
			WithDetail("stdout", out.Stdout)
	}
	return inst, nil
}

// absentOnMiss turns a lookup miss into (nil, nil).
func absentOnMiss(inst *engine.RemoteInstance, err error) (*engine.RemoteInstance, error) {
	if err != nil {
		if engine.IsNotFound(err) && !engine.IsDanglingReference(err) {
			return nil, nil
		}
		return nil, err
	}
	return inst, nil
}

// ignoreNotFound turns a missing object, or a missing object it depends
// on, into success.
func ignoreNotFound(err error) error {
	if engine.IsNotFound(err) {
		return nil
	}
	return err
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
