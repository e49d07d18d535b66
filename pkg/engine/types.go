package engine

import (
	"fmt"
	"reflect"
	"sort"
	"time"
)

// Kind identifies a resource kind managed by the engine.
type Kind string

const (
	// KindDomain is an identity domain.
	KindDomain Kind = "domain"

	// KindProject is a project (tenant).
	KindProject Kind = "project"

	// KindRole is a role.
	KindRole Kind = "role"

	// KindUser is a user.
	KindUser Kind = "user"

	// KindUserRole is the set of role grants of one user on one scope.
	KindUserRole Kind = "user_role"

	// KindService is a catalog service.
	KindService Kind = "service"

	// KindEndpoint is the group of endpoints of one service in one region.
	KindEndpoint Kind = "endpoint"
)

// AllKinds lists every kind in dependency-friendly order.
var AllKinds = []Kind{
	KindDomain,
	KindProject,
	KindRole,
	KindUser,
	KindUserRole,
	KindService,
	KindEndpoint,
}

// Validate checks if the kind is known.
func (k Kind) Validate() error {
	for _, known := range AllKinds {
		if k == known {
			return nil
		}
	}
	return fmt.Errorf("invalid resource kind: %s", k)
}

// Ensure is the desired lifecycle state of a resource.
type Ensure string

const (
	// EnsurePresent means the remote object must exist.
	EnsurePresent Ensure = "present"

	// EnsureAbsent means the remote object must not exist.
	EnsureAbsent Ensure = "absent"
)

// ParseEnsure validates an ensure value. An empty value defaults to present.
func ParseEnsure(value string) (Ensure, error) {
	switch Ensure(value) {
	case "":
		return EnsurePresent, nil
	case EnsurePresent, EnsureAbsent:
		return Ensure(value), nil
	default:
		return "", NewConfigError(
			fmt.Sprintf("invalid ensure value %q, expected present or absent", value), nil).
			WithCode(ErrCodeInvalidEnsure)
	}
}

// Resource is a declared resource: the desired state of one remote object.
type Resource struct {
	// Kind is the resource kind.
	Kind Kind `json:"kind" yaml:"kind"`

	// Title is the identity key as declared, possibly composite ("name::domain").
	Title string `json:"title" yaml:"title"`

	// Ensure is the desired lifecycle state.
	Ensure Ensure `json:"ensure" yaml:"ensure"`

	// Attributes holds the declared attribute values.
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	// Dependencies lists resource IDs that must converge before this one.
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Source names where the declaration came from, e.g. a composite.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// ID returns the catalog-unique identifier "kind[title]".
func (r *Resource) ID() string {
	return ResourceID(r.Kind, r.Title)
}

// ResourceID builds the catalog identifier for a kind and title.
func ResourceID(kind Kind, title string) string {
	return fmt.Sprintf("%s[%s]", kind, title)
}

// String returns the attribute as a string, or "" when unset.
func (r *Resource) String(name string) string {
	v, ok := r.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Has reports whether the attribute is declared.
func (r *Resource) Has(name string) bool {
	_, ok := r.Attributes[name]
	return ok
}

// Equal reports whether two declarations are identical.
func (r *Resource) Equal(other *Resource) bool {
	return r.Kind == other.Kind &&
		r.Title == other.Title &&
		r.Ensure == other.Ensure &&
		reflect.DeepEqual(normalizeAttrs(r.Attributes), normalizeAttrs(other.Attributes))
}

// DependsOn adds a dependency if it is not already declared.
func (r *Resource) DependsOn(targetID string, depType DependencyType) {
	for _, d := range r.Dependencies {
		if d.TargetID == targetID {
			return
		}
	}
	r.Dependencies = append(r.Dependencies, Dependency{TargetID: targetID, Type: depType})
}

func normalizeAttrs(attrs map[string]interface{}) map[string]interface{} {
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// Dependency represents an edge in the execution DAG.
type Dependency struct {
	// TargetID is the ID of the resource this depends on.
	TargetID string `json:"target_id" yaml:"target_id"`

	// Type is the type of dependency relationship.
	Type DependencyType `json:"type" yaml:"type"`
}

// DependencyType represents the type of dependency between resources.
type DependencyType string

const (
	// DependencyRequire indicates a hard dependency that must succeed.
	DependencyRequire DependencyType = "require"

	// DependencyOrder indicates ordering without success requirement.
	DependencyOrder DependencyType = "order"
)

// IdentityKey is the tuple used to decide whether two declarations refer to
// the same remote object.
type IdentityKey struct {
	Kind   Kind
	Name   string
	Domain string
}

// String renders the key for messages.
func (k IdentityKey) String() string {
	if k.Domain == "" {
		return fmt.Sprintf("%s %q", k.Kind, k.Name)
	}
	return fmt.Sprintf("%s %q in domain %q", k.Kind, k.Name, k.Domain)
}

// RemoteInstance is the authoritative record of a remote object as reported
// by the identity service.
type RemoteInstance struct {
	// ID is the remote identifier.
	ID string `json:"id"`

	// Name is the object name.
	Name string `json:"name"`

	// DomainID is the owning domain ID, when the kind is domain-scoped.
	DomainID string `json:"domain_id,omitempty"`

	// Enabled is the enabled flag, when the kind has one.
	Enabled bool `json:"enabled"`

	// Email is the user email.
	Email string `json:"email,omitempty"`

	// Description is the free-form description.
	Description string `json:"description,omitempty"`

	// Fields holds every field reported by the client, keyed in snake_case.
	Fields map[string]string `json:"fields,omitempty"`
}

// Field returns a raw reported field.
func (ri *RemoteInstance) Field(name string) string {
	if ri.Fields == nil {
		return ""
	}
	return ri.Fields[name]
}

// Change describes one attribute difference between remote and desired state.
type Change struct {
	// Attribute is the attribute name.
	Attribute string `json:"attribute"`

	// Before is the remote value.
	Before interface{} `json:"before,omitempty"`

	// After is the desired value.
	After interface{} `json:"after,omitempty"`

	// Sensitive hides the values when rendered.
	Sensitive bool `json:"sensitive,omitempty"`
}

// String renders the change with sensitive values masked.
func (c Change) String() string {
	if c.Sensitive {
		return fmt.Sprintf("%s: (sensitive)", c.Attribute)
	}
	return fmt.Sprintf("%s: %v -> %v", c.Attribute, c.Before, c.After)
}

// PendingChangeSet accumulates attribute changes until flush.
type PendingChangeSet struct {
	values map[string]interface{}
	order  []string
}

// NewPendingChangeSet creates an empty change set.
func NewPendingChangeSet() *PendingChangeSet {
	return &PendingChangeSet{values: make(map[string]interface{})}
}

// Set records a pending value, keeping first-set order.
func (p *PendingChangeSet) Set(attribute string, value interface{}) {
	if _, ok := p.values[attribute]; !ok {
		p.order = append(p.order, attribute)
	}
	p.values[attribute] = value
}

// Get returns a pending value.
func (p *PendingChangeSet) Get(attribute string) (interface{}, bool) {
	v, ok := p.values[attribute]
	return v, ok
}

// Has reports whether the attribute has a pending value.
func (p *PendingChangeSet) Has(attribute string) bool {
	_, ok := p.values[attribute]
	return ok
}

// Attributes returns the pending attribute names in first-set order.
func (p *PendingChangeSet) Attributes() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Len returns the number of pending attributes.
func (p *PendingChangeSet) Len() int {
	return len(p.values)
}

// Empty reports whether nothing is pending.
func (p *PendingChangeSet) Empty() bool {
	return len(p.values) == 0
}

// Clear drops every pending value.
func (p *PendingChangeSet) Clear() {
	p.values = make(map[string]interface{})
	p.order = nil
}

// ResourceResult is the outcome of converging one resource.
type ResourceResult struct {
	// ResourceID is the catalog identifier.
	ResourceID string `json:"resource_id"`

	// Kind is the resource kind.
	Kind Kind `json:"kind"`

	// Title is the declared title.
	Title string `json:"title"`

	// Ensure is the declared ensure.
	Ensure Ensure `json:"ensure"`

	// State is the final lifecycle state.
	State ProviderState `json:"state"`

	// Operation is what the engine did or would do.
	Operation OperationType `json:"operation"`

	// Changes lists attribute changes applied or planned.
	Changes []Change `json:"changes,omitempty"`

	// Error is the failure, if any.
	Error error `json:"-"`

	// Duration is how long the convergence took.
	Duration time.Duration `json:"duration"`

	// StartedAt is when the convergence started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the convergence finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Failed reports whether the resource failed.
func (r *ResourceResult) Failed() bool {
	return r.State == StateFailed
}

// Run is one convergence pass over a catalog.
type Run struct {
	// ID is the unique run identifier.
	ID string `json:"id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// DryRun indicates nothing was mutated.
	DryRun bool `json:"dry_run"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Results holds per-resource results keyed by resource ID.
	Results map[string]*ResourceResult `json:"results"`

	// Summary aggregates the results.
	Summary RunSummary `json:"summary"`

	// Error is the run-level failure, if any.
	Error error `json:"-"`
}

// SortedResults returns results ordered by resource ID.
func (r *Run) SortedResults() []*ResourceResult {
	ids := make([]string, 0, len(r.Results))
	for id := range r.Results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*ResourceResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.Results[id])
	}
	return out
}

// RunSummary aggregates resource outcomes of a run.
type RunSummary struct {
	Total     int `json:"total"`
	Created   int `json:"created"`
	Destroyed int `json:"destroyed"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ExecutionGraph represents the DAG structure for execution.
type ExecutionGraph struct {
	// Nodes maps resource IDs to their graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Levels holds resource IDs grouped by topological level.
	Levels [][]string `json:"levels"`

	// Roots lists resource IDs with no dependencies.
	Roots []string `json:"roots"`

	// Depth is the maximum depth of the DAG.
	Depth int `json:"depth"`
}

// GraphNode represents a node in the execution graph.
type GraphNode struct {
	// ID is the resource ID.
	ID string `json:"id"`

	// Level is the topological level (0 = no dependencies).
	Level int `json:"level"`

	// Dependencies lists edges to resources this node depends on.
	Dependencies []Dependency `json:"dependencies,omitempty"`

	// Dependents lists resource IDs that depend on this node.
	Dependents []string `json:"dependents,omitempty"`
}
