package nodes

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/docuflow/docuflow/pkg/schema"
)

var conditionFields = []schema.ConfigField{
	{Key: "expression", Type: TypeString, Required: true, Description: "CEL expression over document and context"},
}

// ConditionExecutor evaluates a CEL expression and routes to the true or
// false output. Compiled programs are cached and reused across goroutines.
//
// The environment exposes two top-level variables:
//   - document: map(string, dyn) with the subject document's fields
//   - context:  map(string, dyn) with the execution's context bag
type ConditionExecutor struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewConditionExecutor creates the condition executor with a sandboxed CEL
// environment.
func NewConditionExecutor() (*ConditionExecutor, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("document", mapType),
		cel.Variable("context", mapType),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"create CEL environment: %s", err.Error()).WithCause(err)
	}

	return &ConditionExecutor{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

func (e *ConditionExecutor) Kind() schema.NodeKind        { return schema.NodeKindCondition }
func (e *ConditionExecutor) Schema() []schema.ConfigField { return conditionFields }

// Validate compiles the expression eagerly so broken conditions are rejected
// at definition time rather than mid-execution.
func (e *ConditionExecutor) Validate(config map[string]any) error {
	if err := requireFields(conditionFields, config); err != nil {
		return err
	}
	expr := configString(config, "expression")
	_, err := e.getOrCompile(expr)
	return err
}

func (e *ConditionExecutor) Execute(_ context.Context, in ExecContext) (*Result, error) {
	expr := configString(in.Node.Config, "expression")
	if expr == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty condition expression").WithNode(in.Node.ID)
	}

	prg, err := e.getOrCompile(expr)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.Eval(map[string]any{
		"document": documentScope(in.Document),
		"context":  bagScope(in.Bag),
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
			"condition evaluation failed for %q: %s", expr, err.Error()).
			WithCause(err).
			WithNode(in.Node.ID).
			WithDetails(map[string]any{"expression": expr})
	}

	if truthy, ok := out.Value().(bool); ok && truthy {
		return &Result{OutputName: schema.OutputTrue, Data: map[string]any{"result": true}}, nil
	}
	return &Result{OutputName: schema.OutputFalse, Data: map[string]any{"result": false}}, nil
}

func (e *ConditionExecutor) getOrCompile(expr string) (cel.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expr]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expr]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expr, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expr})
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expr, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expr})
	}

	e.cache[expr] = prg
	return prg, nil
}

// documentScope flattens the document into the map shape the expression
// engines see. A nil document yields an empty map so expressions never hit
// nil-ref errors.
func documentScope(doc *schema.Document) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	scope := map[string]any{
		"id":                doc.ID,
		"title":             doc.Title,
		"filename":          doc.Filename,
		"document_type_id":  doc.DocumentTypeID,
		"document_type":     doc.DocumentTypeCode,
		"correspondent_id":  doc.CorrespondentID,
		"tag_ids":           toAnySlice(doc.TagIDs),
		"tag_names":         toAnySlice(doc.TagNames),
		"source":            doc.Source,
		"validation_status": doc.ValidationStatus,
		"validation_level":  doc.ValidationLevel,
		"metadata":          metadataScope(doc.Metadata),
	}
	if doc.Amount != nil {
		scope["amount"] = *doc.Amount
	}
	return scope
}

// metadataScope decodes raw metadata into plain values the expression engines
// accept. Malformed or absent metadata yields an empty map.
func metadataScope(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}

func bagScope(bag map[string]any) map[string]any {
	if bag == nil {
		return map[string]any{}
	}
	return bag
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
