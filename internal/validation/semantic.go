package validation

import (
	"fmt"

	"github.com/docuflow/docuflow/pkg/schema"
)

// validateSemantic performs the graph checks JSON Schema cannot express:
// unique IDs, known node kinds, per-kind config, connection references,
// entry point rules and reachability.
func (v *Validator) validateSemantic(def *schema.WorkflowDefinition) error {
	nodeIDs := make(map[string]schema.NodeKind, len(def.Nodes))
	entryCount := 0

	for i, node := range def.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if _, exists := nodeIDs[node.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s: duplicate node id %q", path, node.ID)
		}
		nodeIDs[node.ID] = node.Kind

		exec, err := v.registry.Get(node.Kind)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeUnknownNodeKind,
				"%s: unknown node kind %q", path, node.Kind)
		}

		if node.IsEntryPoint {
			entryCount++
			if !node.Kind.Trigger() {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"%s: entry point %q must be a trigger kind, got %q", path, node.ID, node.Kind)
			}
		} else if node.Kind.Trigger() {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: trigger node %q must be an entry point", path, node.ID)
		}

		if err := exec.Validate(node.Config); err != nil {
			if ferr, ok := err.(*schema.FlowError); ok {
				return ferr.WithNode(node.ID)
			}
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: invalid config: %s", path, err.Error()).WithNode(node.ID)
		}
	}

	if entryCount == 0 {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no entry point")
	}

	adjacency := make(map[string][]string, len(def.Nodes))
	connIDs := make(map[string]struct{}, len(def.Connections))
	for i, conn := range def.Connections {
		path := fmt.Sprintf("connections[%d]", i)

		if _, exists := connIDs[conn.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "%s: duplicate connection id %q", path, conn.ID)
		}
		connIDs[conn.ID] = struct{}{}

		if _, ok := nodeIDs[conn.FromNodeID]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: references non-existent node %q", path, conn.FromNodeID)
		}
		if _, ok := nodeIDs[conn.ToNodeID]; !ok {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: references non-existent node %q", path, conn.ToNodeID)
		}
		if kind := nodeIDs[conn.ToNodeID]; kind.Trigger() {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"%s: trigger node %q cannot be a connection target", path, conn.ToNodeID)
		}
		adjacency[conn.FromNodeID] = append(adjacency[conn.FromNodeID], conn.ToNodeID)
	}

	// Every non-entry node must be reachable from some entry point.
	reachable := make(map[string]bool, len(def.Nodes))
	var walk func(id string)
	walk = func(id string) {
		if reachable[id] {
			return
		}
		reachable[id] = true
		for _, next := range adjacency[id] {
			walk(next)
		}
	}
	for _, node := range def.Nodes {
		if node.IsEntryPoint {
			walk(node.ID)
		}
	}
	for _, node := range def.Nodes {
		if !reachable[node.ID] {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"node %q is unreachable from any entry point", node.ID)
		}
	}

	return nil
}
