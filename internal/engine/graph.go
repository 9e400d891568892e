package engine

import (
	"sort"

	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/pkg/schema"
)

// Graph is the in-memory routed form of a workflow definition. Executors are
// resolved once at compile time so a definition referencing an unknown node
// kind fails before any execution starts.
type Graph struct {
	Definition *schema.WorkflowDefinition
	Nodes      map[string]schema.WorkflowNode
	Executors  map[string]nodes.Executor
	// routes maps (from node, output name) to the outgoing connections
	// sorted by ascending order.
	routes map[routeKey][]schema.WorkflowConnection
	// Entries are the entry-point nodes in definition order.
	Entries []schema.WorkflowNode
}

type routeKey struct {
	from   string
	output string
}

// CompileGraph builds the executable graph for a definition, binding each
// node to its executor.
func CompileGraph(def *schema.WorkflowDefinition, reg *nodes.Registry) (*Graph, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}
	if len(def.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow has no nodes")
	}

	g := &Graph{
		Definition: def,
		Nodes:      make(map[string]schema.WorkflowNode, len(def.Nodes)),
		Executors:  make(map[string]nodes.Executor, len(def.Nodes)),
		routes:     make(map[routeKey][]schema.WorkflowConnection, len(def.Connections)),
	}

	for _, node := range def.Nodes {
		if node.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "node with empty ID")
		}
		if _, exists := g.Nodes[node.ID]; exists {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", node.ID)
		}
		exec, err := reg.Get(node.Kind)
		if err != nil {
			return nil, err
		}
		g.Nodes[node.ID] = node
		g.Executors[node.ID] = exec
		if node.IsEntryPoint {
			g.Entries = append(g.Entries, node)
		}
	}

	for _, conn := range def.Connections {
		if _, ok := g.Nodes[conn.FromNodeID]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"connection %s starts at unknown node %s", conn.ID, conn.FromNodeID)
		}
		if _, ok := g.Nodes[conn.ToNodeID]; !ok {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"connection %s ends at unknown node %s", conn.ID, conn.ToNodeID)
		}
		output := conn.OutputName
		if output == "" {
			output = schema.OutputDefault
		}
		key := routeKey{from: conn.FromNodeID, output: output}
		g.routes[key] = append(g.routes[key], conn)
	}

	// Deterministic routing: ascending order, connection ID breaks ties.
	for key := range g.routes {
		conns := g.routes[key]
		sort.SliceStable(conns, func(i, j int) bool {
			if conns[i].Order != conns[j].Order {
				return conns[i].Order < conns[j].Order
			}
			return conns[i].ID < conns[j].ID
		})
	}

	return g, nil
}

// Next returns the target node of the lowest-order connection leaving from
// on the named output, and false when no such connection exists.
func (g *Graph) Next(from, output string) (schema.WorkflowNode, bool) {
	if output == "" {
		output = schema.OutputDefault
	}
	conns := g.routes[routeKey{from: from, output: output}]
	if len(conns) == 0 {
		return schema.WorkflowNode{}, false
	}
	node, ok := g.Nodes[conns[0].ToNodeID]
	return node, ok
}

// HasRoute reports whether any connection leaves from on the named output.
func (g *Graph) HasRoute(from, output string) bool {
	if output == "" {
		output = schema.OutputDefault
	}
	return len(g.routes[routeKey{from: from, output: output}]) > 0
}
