package engine

import (
	"errors"
	"fmt"
)

// Catalog is the ordered set of declared resources for one run.
type Catalog struct {
	resources []*Resource
	index     map[string]*Resource
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{index: make(map[string]*Resource)}
}

// Add declares a resource. Declaring the same kind and title twice is allowed
// only when both declarations are identical, which lets shared objects such
// as domains and roles come from several composites.
func (c *Catalog) Add(res *Resource) error {
	if res == nil {
		return fmt.Errorf("resource is nil")
	}
	if err := res.Kind.Validate(); err != nil {
		return NewConfigError(err.Error(), nil).WithCode(ErrCodeInvalidParameter).WithResource(res.ID())
	}
	if res.Title == "" {
		return NewConfigError(fmt.Sprintf("%s resource has empty title", res.Kind), nil).
			WithCode(ErrCodeMissingParameter)
	}

	id := res.ID()
	if existing, ok := c.index[id]; ok {
		if existing.Equal(res) {
			for _, dep := range res.Dependencies {
				existing.DependsOn(dep.TargetID, dep.Type)
			}
			return nil
		}
		return NewDuplicateResourceError(
			fmt.Sprintf("conflicting declarations of %s (from %q and %q)", id, sourceOf(existing), sourceOf(res)),
			nil,
		).WithResource(id)
	}

	c.index[id] = res
	c.resources = append(c.resources, res)
	return nil
}

// AddAll declares several resources, stopping at the first error.
func (c *Catalog) AddAll(resources []*Resource) error {
	for _, res := range resources {
		if err := c.Add(res); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a resource by ID.
func (c *Catalog) Get(id string) (*Resource, bool) {
	res, ok := c.index[id]
	return res, ok
}

// Resources returns the resources in declaration order.
func (c *Catalog) Resources() []*Resource {
	out := make([]*Resource, len(c.resources))
	copy(out, c.resources)
	return out
}

// Len returns the number of resources.
func (c *Catalog) Len() int {
	return len(c.resources)
}

// ValidateEnsure checks every declaration's ensure value and normalizes an
// empty value to present. It returns one ConfigError per invalid resource,
// keyed by resource ID.
func (c *Catalog) ValidateEnsure() map[string]error {
	invalid := make(map[string]error)
	for _, res := range c.resources {
		ensure, err := ParseEnsure(string(res.Ensure))
		if err != nil {
			var engErr *EngineError
			if errors.As(err, &engErr) {
				err = engErr.WithResource(res.ID())
			}
			invalid[res.ID()] = err
			continue
		}
		res.Ensure = ensure
	}
	return invalid
}

// BuildGraph orders the catalog into execution levels.
func (c *Catalog) BuildGraph() (*ExecutionGraph, error) {
	return NewDAGBuilder().BuildGraph(c.resources)
}

func sourceOf(res *Resource) string {
	if res.Source == "" {
		return "manifest"
	}
	return res.Source
}
