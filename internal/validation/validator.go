// Package validation checks workflow definitions before they are saved:
// structural shape through JSON Schema, then graph semantics the schema
// cannot express.
package validation

import (
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/pkg/schema"
)

// Validator validates workflow definitions. Safe for concurrent use.
type Validator struct {
	workflowSchema *jsonschema.Schema
	registry       *nodes.Registry
}

// New creates a Validator bound to the executor registry; node kinds and
// per-kind configuration are checked against the registered executors.
func New(registry *nodes.Registry) (*Validator, error) {
	compiled, err := compileWorkflowSchema()
	if err != nil {
		return nil, err
	}
	return &Validator{workflowSchema: compiled, registry: registry}, nil
}

// ValidateDefinition runs the structural and semantic checks. The first
// failing layer reports; semantic checks only run on structurally valid
// definitions.
func (v *Validator) ValidateDefinition(def *schema.WorkflowDefinition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}

	doc, err := toJSONValue(def)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize workflow definition").WithCause(err)
	}
	if err := v.workflowSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}

	return v.validateSemantic(def)
}
