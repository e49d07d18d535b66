package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Provider converges one declared resource against the remote system.
// There is one implementation per Kind, chosen when the provider is built.
type Provider interface {
	// Resource returns the declaration the provider is bound to.
	Resource() *Resource

	// Exists probes the remote system. A missing object is (false, nil);
	// an unresolvable cross-reference is a NotFoundError.
	Exists(ctx context.Context) (bool, error)

	// Create creates the remote object from the declared attributes and
	// records it so a later Exists reflects it without a round trip.
	Create(ctx context.Context) error

	// Destroy deletes the remote object. Destroying an absent object succeeds.
	Destroy(ctx context.Context) error

	// Sync compares declared and remote attributes, queues the differences
	// into the pending change set and returns them. It never mutates the
	// remote system.
	Sync(ctx context.Context) ([]Change, error)

	// Flush applies the pending change set and clears it.
	Flush(ctx context.Context) error

	// State returns the lifecycle state.
	State() ProviderState
}

// ProviderFactory builds a provider for a declaration. Declarations that
// fail typed validation must be rejected here with a ConfigError.
type ProviderFactory func(res *Resource) (Provider, error)

// Registry maps each kind to its provider factory.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]ProviderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]ProviderFactory)}
}

// Register adds the factory for a kind.
func (r *Registry) Register(kind Kind, factory ProviderFactory) error {
	if err := kind.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("provider for kind %s already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Build creates a provider for the declaration.
func (r *Registry) Build(res *Resource) (Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[res.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, NewConfigError(fmt.Sprintf("no provider for kind %q", res.Kind), nil).
			WithCode(ErrCodeInvalidParameter).
			WithResource(res.ID())
	}
	return factory(res)
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
