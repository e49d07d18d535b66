package policy

import (
	"time"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but never block a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the run unless policy checks are skipped.
	SeverityError Severity = "error"

	// SeverityCritical blocks the run unless policy checks are skipped.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity stop a run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. It must define a "deny" set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the resource ID (kind[title]) that violated the policy.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// DetectedAt is when the violation was detected.
	DetectedAt time.Time `json:"detected_at"`
}

// String renders the violation for terminal output.
func (v PolicyViolation) String() string {
	if v.Resource == "" {
		return string(v.Severity) + " [" + v.Policy + "] " + v.Message
	}
	return string(v.Severity) + " [" + v.Policy + "] " + v.Resource + ": " + v.Message
}

// PolicyResult represents the result of evaluating all enabled policies
// against one catalog.
type PolicyResult struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists the blocking violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists non-blocking findings.
	Warnings []PolicyViolation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedAt is when the policies were evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// PolicyInput is the document exposed to Rego as "input".
type PolicyInput struct {
	// Resources is the expanded catalog.
	Resources []ResourceInput `json:"resources"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// ResourceInput is the policy view of one declared resource.
type ResourceInput struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind"`
	Title      string                 `json:"title"`
	Ensure     string                 `json:"ensure"`
	Attributes map[string]interface{} `json:"attributes"`
	Source     string                 `json:"source,omitempty"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Environment is the deployment environment from settings.
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`
}

// NewPolicyInput builds the Rego input for a catalog. An empty ensure is
// rendered as present so policies never see the unset form.
func NewPolicyInput(resources []*engine.Resource, pctx *PolicyContext) *PolicyInput {
	if pctx == nil {
		pctx = &PolicyContext{}
	}
	if pctx.Timestamp.IsZero() {
		pctx.Timestamp = time.Now()
	}

	input := &PolicyInput{
		Resources: make([]ResourceInput, 0, len(resources)),
		Context:   pctx,
	}
	for _, res := range resources {
		ensure := string(res.Ensure)
		if ensure == "" {
			ensure = string(engine.EnsurePresent)
		}
		attrs := res.Attributes
		if attrs == nil {
			attrs = map[string]interface{}{}
		}
		input.Resources = append(input.Resources, ResourceInput{
			ID:         res.ID(),
			Kind:       string(res.Kind),
			Title:      res.Title,
			Ensure:     ensure,
			Attributes: attrs,
			Source:     res.Source,
		})
	}
	return input
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}
