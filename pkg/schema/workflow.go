package schema

import (
	"encoding/json"
	"time"
)

// NodeKind discriminates the executor a node is dispatched to.
// Kinds are resolved once at graph-load time; an unregistered kind is a hard
// failure, never a deferred run-time lookup.
type NodeKind string

const (
	// Entry (trigger) kinds. A node of one of these kinds may be an entry point.
	NodeKindDocumentAdded     NodeKind = "trigger.document_added"
	NodeKindTagAdded          NodeKind = "trigger.tag_added"
	NodeKindValidationChanged NodeKind = "trigger.validation_changed"
	NodeKindManual            NodeKind = "trigger.manual"
	NodeKindUpload            NodeKind = "trigger.upload"
	NodeKindScan              NodeKind = "trigger.scan"

	NodeKindCondition   NodeKind = "condition"
	NodeKindSetVariable NodeKind = "set_variable"
	NodeKindExtract     NodeKind = "extract"
	NodeKindApproval    NodeKind = "approval"
	NodeKindWait        NodeKind = "wait"
	NodeKindNotify      NodeKind = "notify"
	NodeKindSetStatus   NodeKind = "document.set_status"
	NodeKindAddTag      NodeKind = "document.add_tag"
)

// Trigger reports whether the kind may host an entry point.
func (k NodeKind) Trigger() bool {
	switch k {
	case NodeKindDocumentAdded, NodeKindTagAdded, NodeKindValidationChanged,
		NodeKindManual, NodeKindUpload, NodeKindScan:
		return true
	}
	return false
}

// Well-known output names used to select outgoing connections.
const (
	OutputDefault  = "default"
	OutputApproved = "approved"
	OutputRejected = "rejected"
	OutputTimeout  = "timeout"
	OutputTrue     = "true"
	OutputFalse    = "false"
)

// WorkflowDefinition is the static, versioned description of a workflow graph.
// CanvasData is designer layout only; the engine never parses it.
type WorkflowDefinition struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Enabled     bool                 `json:"enabled"`
	Version     int                  `json:"version"`
	CanvasData  json.RawMessage      `json:"canvas_data,omitempty"`
	Nodes       []WorkflowNode       `json:"nodes"`
	Connections []WorkflowConnection `json:"connections,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// WorkflowNode is one vertex of the graph. Config is shaped per kind; the
// executor's published schema validates it at save time.
type WorkflowNode struct {
	ID           string         `json:"id"`
	Kind         NodeKind       `json:"kind"`
	Name         string         `json:"name,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	IsEntryPoint bool           `json:"is_entry_point,omitempty"`
}

// WorkflowConnection is a labeled directed edge. A node result whose output
// name matches OutputName follows this edge; ties on (from, output) are broken
// by the lowest Order.
type WorkflowConnection struct {
	ID         string `json:"id"`
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
	OutputName string `json:"output_name"`
	Order      int    `json:"order"`
	Label      string `json:"label,omitempty"`
}

// Node returns the node with the given ID, or nil.
func (d *WorkflowDefinition) Node(id string) *WorkflowNode {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// EntryPoints returns the nodes flagged as entry points, in definition order.
func (d *WorkflowDefinition) EntryPoints() []WorkflowNode {
	var entries []WorkflowNode
	for _, n := range d.Nodes {
		if n.IsEntryPoint {
			entries = append(entries, n)
		}
	}
	return entries
}

// ConfigField describes one accepted configuration key of a node kind.
// Consumed by the designer to render forms and by validation before execution.
type ConfigField struct {
	Key         string `json:"key"`
	Type        string `json:"type"` // string, number, integer, boolean, string_list
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}
