package nodes

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/docuflow/docuflow/pkg/schema"
)

var setVariableFields = []schema.ConfigField{
	{Key: "name", Type: TypeString, Required: true, Description: "Context variable to assign"},
	{Key: "expression", Type: TypeString, Required: true, Description: "Expr expression over document and context"},
}

// SetVariableExecutor evaluates an expr-lang expression and stores the result
// under a named key in the execution's context bag. Compiled programs are
// cached across goroutines.
type SetVariableExecutor struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewSetVariableExecutor() *SetVariableExecutor {
	return &SetVariableExecutor{cache: make(map[string]*vm.Program)}
}

func (e *SetVariableExecutor) Kind() schema.NodeKind        { return schema.NodeKindSetVariable }
func (e *SetVariableExecutor) Schema() []schema.ConfigField { return setVariableFields }

func (e *SetVariableExecutor) Validate(config map[string]any) error {
	if err := requireFields(setVariableFields, config); err != nil {
		return err
	}
	_, err := e.getOrCompile(configString(config, "expression"))
	return err
}

func (e *SetVariableExecutor) Execute(_ context.Context, in ExecContext) (*Result, error) {
	name := configString(in.Config(), "name")
	expression := configString(in.Config(), "expression")
	if name == "" || expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"set_variable requires non-empty 'name' and 'expression'").WithNode(in.Node.ID)
	}

	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	env := map[string]any{
		"document": documentScope(in.Document),
		"context":  bagScope(in.Bag),
	}
	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithNode(in.Node.ID).
			WithDetails(map[string]any{"expression": expression})
	}

	return &Result{Data: map[string]any{name: out}}, nil
}

func (e *SetVariableExecutor) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{"document": map[string]any{}, "context": map[string]any{}}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}
