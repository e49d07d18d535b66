package engine

import (
	"strings"
	"testing"
)

func decl(kind Kind, title string, deps ...string) *Resource {
	r := &Resource{Kind: kind, Title: title, Ensure: EnsurePresent}
	for _, d := range deps {
		r.DependsOn(d, DependencyRequire)
	}
	return r
}

func TestDAGBuilder_BuildGraph_Empty(t *testing.T) {
	graph, err := NewDAGBuilder().BuildGraph(nil)
	if err != nil {
		t.Fatalf("Expected no error for empty catalog, got: %v", err)
	}
	if len(graph.Nodes) != 0 {
		t.Errorf("Expected 0 nodes, got %d", len(graph.Nodes))
	}
	if graph.Depth != 0 {
		t.Errorf("Expected depth 0, got %d", graph.Depth)
	}
}

func TestDAGBuilder_BuildGraph_Levels(t *testing.T) {
	resources := []*Resource{
		decl(KindDomain, "userdomain"),
		decl(KindRole, "admin"),
		decl(KindUser, "neutron", "domain[userdomain]"),
		decl(KindService, "neutron::network"),
		decl(KindEndpoint, "RegionOne/neutron::network", "service[neutron::network]"),
		decl(KindUserRole, "neutron@services", "user[neutron]", "role[admin]"),
	}

	builder := NewDAGBuilder()
	graph, err := builder.BuildGraph(resources)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if graph.Depth != 3 {
		t.Fatalf("Expected depth 3, got %d", graph.Depth)
	}

	expected := map[string]int{
		"domain[userdomain]":                   0,
		"role[admin]":                          0,
		"service[neutron::network]":            0,
		"user[neutron]":                        1,
		"endpoint[RegionOne/neutron::network]": 1,
		"user_role[neutron@services]":          2,
	}
	for id, level := range expected {
		node, ok := graph.Nodes[id]
		if !ok {
			t.Errorf("Expected node %s", id)
			continue
		}
		if node.Level != level {
			t.Errorf("Expected %s at level %d, got %d", id, level, node.Level)
		}
	}

	// levels keep declaration order
	if got := strings.Join(graph.Levels[0], ","); got != "domain[userdomain],role[admin],service[neutron::network]" {
		t.Errorf("Unexpected level 0 order: %s", got)
	}
}

func TestDAGBuilder_BuildGraph_Errors(t *testing.T) {
	tests := []struct {
		name      string
		resources []*Resource
		code      string
	}{
		{
			name:      "missing dependency",
			resources: []*Resource{decl(KindUser, "u", "domain[nope]")},
			code:      ErrCodeDanglingReference,
		},
		{
			name: "cycle",
			resources: []*Resource{
				decl(KindUser, "a", "role[b]"),
				decl(KindRole, "b", "user[a]"),
			},
			code: ErrCodeDependencyCycle,
		},
		{
			name:      "self dependency",
			resources: []*Resource{decl(KindRole, "a", "role[a]")},
			code:      ErrCodeDependencyCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDAGBuilder().BuildGraph(tt.resources)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !IsConfigError(err) {
				t.Errorf("Expected ConfigError, got %v", err)
			}
			engErr, ok := err.(*EngineError)
			if !ok || engErr.Code != tt.code {
				t.Errorf("Expected code %s, got %v", tt.code, err)
			}
		})
	}
}

func TestDAGBuilder_ToDOT(t *testing.T) {
	builder := NewDAGBuilder()
	_, err := builder.BuildGraph([]*Resource{
		decl(KindService, "nova::compute"),
		decl(KindEndpoint, "RegionOne/nova::compute", "service[nova::compute]"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	dot := builder.ToDOT()
	if !strings.Contains(dot, `"service[nova::compute]" -> "endpoint[RegionOne/nova::compute]"`) {
		t.Errorf("Expected edge in DOT output, got:\n%s", dot)
	}
}
