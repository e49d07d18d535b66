package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder builds a directed acyclic graph from declared resources.
// It orders resources topologically and assigns execution levels; resources
// on the same level do not depend on each other.
type DAGBuilder struct {
	// resources maps resource IDs to their declarations
	resources map[string]*Resource

	// order is the declaration index, used to keep levels deterministic
	order map[string]int

	// adjacencyList maps resource IDs to their dependents
	adjacencyList map[string][]string

	// reverseAdjacencyList maps resource IDs to their dependencies
	reverseAdjacencyList map[string][]Dependency

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// levels holds resource IDs per execution level
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		resources:            make(map[string]*Resource),
		order:                make(map[string]int),
		adjacencyList:        make(map[string][]string),
		reverseAdjacencyList: make(map[string][]Dependency),
		inDegree:             make(map[string]int),
		levels:               make([][]string, 0),
	}
}

// BuildGraph constructs an execution graph from resources.
// It validates dependencies, detects cycles, and computes execution levels.
func (b *DAGBuilder) BuildGraph(resources []*Resource) (*ExecutionGraph, error) {
	if len(resources) == 0 {
		return &ExecutionGraph{
			Nodes:  make(map[string]*GraphNode),
			Levels: make([][]string, 0),
			Roots:  make([]string, 0),
		}, nil
	}

	if err := b.initialize(resources); err != nil {
		return nil, err
	}

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	if err := b.computeLevels(); err != nil {
		return nil, err
	}

	return b.buildExecutionGraph(), nil
}

// initialize sets up the internal data structures from resources.
func (b *DAGBuilder) initialize(resources []*Resource) error {
	for i, res := range resources {
		id := res.ID()
		if res.Title == "" {
			return NewConfigError(fmt.Sprintf("%s resource has empty title", res.Kind), nil).
				WithCode(ErrCodeMissingParameter)
		}
		if _, exists := b.resources[id]; exists {
			return NewDuplicateResourceError(fmt.Sprintf("resource %s declared twice", id), nil).
				WithResource(id)
		}
		b.resources[id] = res
		b.order[id] = i
		b.adjacencyList[id] = make([]string, 0)
		b.reverseAdjacencyList[id] = make([]Dependency, 0)
		b.inDegree[id] = 0
	}

	for _, res := range resources {
		id := res.ID()
		for _, dep := range res.Dependencies {
			if _, exists := b.resources[dep.TargetID]; !exists {
				return NewConfigError(
					fmt.Sprintf("resource %s depends on undeclared resource %s", id, dep.TargetID),
					nil,
				).WithCode(ErrCodeDanglingReference).WithResource(id)
			}
			if dep.TargetID == id {
				return NewConfigError(fmt.Sprintf("resource %s depends on itself", id), nil).
					WithCode(ErrCodeDependencyCycle).WithResource(id)
			}

			// dependency must complete before the resource can start
			b.adjacencyList[dep.TargetID] = append(b.adjacencyList[dep.TargetID], id)
			b.reverseAdjacencyList[id] = append(b.reverseAdjacencyList[id], dep)
			b.inDegree[id]++
		}
	}

	return nil
}

// detectCycles uses depth-first search to detect circular dependencies.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, id := range b.sortedIDs(b.keys()) {
		if visited[id] {
			continue
		}
		if cycle := b.detectCyclesUtil(id, visited, recStack, nil); cycle != nil {
			return NewConfigError(
				fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")),
				nil,
			).WithCode(ErrCodeDependencyCycle)
		}
	}

	return nil
}

// detectCyclesUtil performs DFS and returns the cycle path, if any.
func (b *DAGBuilder) detectCyclesUtil(
	nodeID string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[nodeID] = true
	recStack[nodeID] = true
	path = append(path, nodeID)

	for _, dependent := range b.adjacencyList[nodeID] {
		if !visited[dependent] {
			if cycle := b.detectCyclesUtil(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, id := range path {
				if id == dependent {
					return append(append([]string{}, path[i:]...), dependent)
				}
			}
		}
	}

	recStack[nodeID] = false
	return nil
}

// computeLevels assigns execution levels using Kahn's algorithm.
func (b *DAGBuilder) computeLevels() error {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, degree := range b.inDegree {
		inDegree[id] = degree
	}

	current := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			current = append(current, id)
		}
	}

	processed := 0
	for len(current) > 0 {
		current = b.sortedIDs(current)
		b.levels = append(b.levels, current)
		processed += len(current)

		next := make([]string, 0)
		for _, nodeID := range current {
			for _, dependent := range b.adjacencyList[nodeID] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if processed != len(b.resources) {
		return NewConfigError("failed to order all resources, possible cycle", nil).
			WithCode(ErrCodeDependencyCycle)
	}

	return nil
}

// buildExecutionGraph creates the final ExecutionGraph structure.
func (b *DAGBuilder) buildExecutionGraph() *ExecutionGraph {
	graph := &ExecutionGraph{
		Nodes:  make(map[string]*GraphNode),
		Levels: b.levels,
		Roots:  make([]string, 0),
		Depth:  len(b.levels),
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			graph.Nodes[id] = &GraphNode{
				ID:           id,
				Level:        level,
				Dependencies: b.reverseAdjacencyList[id],
				Dependents:   b.adjacencyList[id],
			}
			if level == 0 {
				graph.Roots = append(graph.Roots, id)
			}
		}
	}

	return graph
}

// GetLevels returns the computed execution levels.
func (b *DAGBuilder) GetLevels() [][]string {
	return b.levels
}

// ToDOT generates a DOT format representation of the DAG for visualization.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Catalog {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range b.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, id := range ids {
			res := b.resources[id]
			sb.WriteString(fmt.Sprintf("    %q [fillcolor=%q, style=\"filled,rounded\"];\n",
				id, ensureColor(res.Ensure)))
		}
		sb.WriteString("  }\n\n")
	}

	for _, id := range b.sortedIDs(b.keys()) {
		for _, dep := range b.reverseAdjacencyList[id] {
			sb.WriteString(fmt.Sprintf("  %q -> %q [%s];\n", dep.TargetID, id, dependencyStyle(dep.Type)))
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

func (b *DAGBuilder) keys() []string {
	ids := make([]string, 0, len(b.resources))
	for id := range b.resources {
		ids = append(ids, id)
	}
	return ids
}

// sortedIDs orders IDs by declaration index.
func (b *DAGBuilder) sortedIDs(ids []string) []string {
	sort.Slice(ids, func(i, j int) bool { return b.order[ids[i]] < b.order[ids[j]] })
	return ids
}

func ensureColor(e Ensure) string {
	if e == EnsureAbsent {
		return "lightcoral"
	}
	return "lightgreen"
}

func dependencyStyle(depType DependencyType) string {
	if depType == DependencyOrder {
		return "style=dotted, color=gray"
	}
	return "style=solid, color=black"
}
