package nodes

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/docuflow/docuflow/pkg/schema"
)

var extractFields = []schema.ConfigField{
	{Key: "query", Type: TypeString, Required: true, Description: "jq query over the document and context"},
	{Key: "target", Type: TypeString, Required: true, Description: "Context variable receiving the query result"},
}

// ExtractExecutor runs a jq query against the document projection and the
// context bag, storing the result under a named bag key. Compiled queries are
// cached across goroutines.
//
// jq queries can produce multiple outputs. A single output is stored
// directly; multiple outputs are collected into a slice.
type ExtractExecutor struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

func NewExtractExecutor() *ExtractExecutor {
	return &ExtractExecutor{cache: make(map[string]*gojq.Code)}
}

func (e *ExtractExecutor) Kind() schema.NodeKind        { return schema.NodeKindExtract }
func (e *ExtractExecutor) Schema() []schema.ConfigField { return extractFields }

func (e *ExtractExecutor) Validate(config map[string]any) error {
	if err := requireFields(extractFields, config); err != nil {
		return err
	}
	_, err := e.getOrCompile(configString(config, "query"))
	return err
}

func (e *ExtractExecutor) Execute(ctx context.Context, in ExecContext) (*Result, error) {
	query := configString(in.Config(), "query")
	target := configString(in.Config(), "target")
	if query == "" || target == "" {
		return nil, schema.NewError(schema.ErrCodeValidation,
			"extract requires non-empty 'query' and 'target'").WithNode(in.Node.ID)
	}

	code, err := e.getOrCompile(query)
	if err != nil {
		return nil, err
	}

	input := map[string]any{
		"document": documentScope(in.Document),
		"context":  bagScope(in.Bag),
	}

	iter := code.RunWithContext(ctx, input)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if evalErr, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
				"jq evaluation failed for %q: %s", query, evalErr.Error()).
				WithCause(evalErr).
				WithNode(in.Node.ID).
				WithDetails(map[string]any{"query": query})
		}
		results = append(results, val)
	}

	var value any
	switch len(results) {
	case 0:
		value = nil
	case 1:
		value = results[0]
	default:
		value = results
	}

	return &Result{Data: map[string]any{target: value}}, nil
}

func (e *ExtractExecutor) getOrCompile(query string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[query]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	code, err := gojq.Compile(parsed,
		// Block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	e.cache[query] = code
	return code, nil
}
