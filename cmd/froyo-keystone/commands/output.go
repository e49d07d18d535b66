package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/openfroyo/froyo-keystone/pkg/engine"
	"github.com/openfroyo/froyo-keystone/pkg/policy"
	"github.com/openfroyo/froyo-keystone/pkg/reconciler"
)

const redacted = "(sensitive)"

type changeView struct {
	Attribute string      `json:"attribute"`
	Before    interface{} `json:"before,omitempty"`
	After     interface{} `json:"after,omitempty"`
}

type resultView struct {
	Resource  string        `json:"resource"`
	Operation string        `json:"operation"`
	State     string        `json:"state"`
	Changes   []changeView  `json:"changes,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

type runView struct {
	ID      string                   `json:"id"`
	Status  engine.RunStatus         `json:"status"`
	DryRun  bool                     `json:"dry_run"`
	Summary engine.RunSummary        `json:"summary"`
	Results []resultView             `json:"results"`
	Policy  []policy.PolicyViolation `json:"policy,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// orderedResults returns run results in execution order.
func orderedResults(run *engine.Run, plan *reconciler.Plan) []*engine.ResourceResult {
	out := make([]*engine.ResourceResult, 0, len(run.Results))
	seen := make(map[string]bool, len(run.Results))
	if plan != nil && plan.Graph != nil {
		for _, level := range plan.Graph.Levels {
			for _, id := range level {
				if res, ok := run.Results[id]; ok {
					out = append(out, res)
					seen[id] = true
				}
			}
		}
	}
	rest := make([]string, 0)
	for id := range run.Results {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	for _, id := range rest {
		out = append(out, run.Results[id])
	}
	return out
}

func viewChanges(changes []engine.Change) []changeView {
	out := make([]changeView, 0, len(changes))
	for _, c := range changes {
		v := changeView{Attribute: c.Attribute, Before: c.Before, After: c.After}
		if c.Sensitive {
			v.Before, v.After = redacted, redacted
		}
		out = append(out, v)
	}
	return out
}

func policyFindings(plan *reconciler.Plan) []policy.PolicyViolation {
	if plan == nil || plan.Policy == nil {
		return nil
	}
	return append(append([]policy.PolicyViolation{}, plan.Policy.Violations...), plan.Policy.Warnings...)
}

func printRun(w io.Writer, run *engine.Run, plan *reconciler.Plan) error {
	if jsonOutput {
		view := runView{
			ID:      run.ID,
			Status:  run.Status,
			DryRun:  run.DryRun,
			Summary: run.Summary,
			Results: make([]resultView, 0, len(run.Results)),
			Policy:  policyFindings(plan),
		}
		if run.Error != nil {
			view.Error = run.Error.Error()
		}
		for _, res := range orderedResults(run, plan) {
			rv := resultView{
				Resource:  res.ResourceID,
				Operation: string(res.Operation),
				State:     string(res.State),
				Changes:   viewChanges(res.Changes),
				Duration:  res.Duration,
			}
			if res.Error != nil {
				rv.Error = res.Error.Error()
			}
			view.Results = append(view.Results, rv)
		}
		return writeJSON(w, view)
	}

	printFindings(w, policyFindings(plan))

	mode := "Apply"
	if run.DryRun {
		mode = "Plan"
	}
	fmt.Fprintf(w, "%s %s: %s\n", mode, run.ID, run.Status)
	for _, res := range orderedResults(run, plan) {
		fmt.Fprintf(w, "  %s %s (%s)\n", marker(res), res.ResourceID, res.Operation)
		for _, c := range viewChanges(res.Changes) {
			fmt.Fprintf(w, "      %s: %v -> %v\n", c.Attribute, c.Before, c.After)
		}
		if res.Error != nil {
			fmt.Fprintf(w, "      error: %v\n", res.Error)
		}
	}

	s := run.Summary
	fmt.Fprintf(w, "\n%d resources: %d created, %d updated, %d destroyed, %d unchanged, %d failed, %d skipped\n",
		s.Total, s.Created, s.Updated, s.Destroyed, s.Unchanged, s.Failed, s.Skipped)
	if run.Error != nil {
		fmt.Fprintf(w, "error: %v\n", run.Error)
	}
	return nil
}

func marker(res *engine.ResourceResult) string {
	switch {
	case res.State == engine.StateFailed:
		return "!"
	case res.State == engine.StateSkipped:
		return "?"
	case res.Operation == engine.OperationCreate:
		return "+"
	case res.Operation == engine.OperationDelete:
		return "-"
	case res.Operation == engine.OperationUpdate:
		return "~"
	default:
		return "="
	}
}

func printFindings(w io.Writer, findings []policy.PolicyViolation) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintln(w, "Policy findings:")
	for _, v := range findings {
		fmt.Fprintf(w, "  %s\n", v.String())
	}
	fmt.Fprintln(w)
}

// runError turns an unsuccessful run into a command error.
func runError(run *engine.Run) error {
	if run.Status == engine.RunStatusSucceeded {
		return nil
	}
	return fmt.Errorf("%w: %s", errRunIncomplete, run.Status)
}
