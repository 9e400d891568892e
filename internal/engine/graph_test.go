package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/nodes"
	"github.com/docuflow/docuflow/pkg/schema"
)

// stubExecutor is a minimal executor for graph tests.
type stubExecutor struct {
	kind   schema.NodeKind
	result *nodes.Result
	err    error
}

func (s *stubExecutor) Kind() schema.NodeKind        { return s.kind }
func (s *stubExecutor) Schema() []schema.ConfigField { return nil }
func (s *stubExecutor) Validate(map[string]any) error {
	return nil
}
func (s *stubExecutor) Execute(_ context.Context, _ nodes.ExecContext) (*nodes.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &nodes.Result{}, nil
}

func testRegistry(t *testing.T, kinds ...schema.NodeKind) *nodes.Registry {
	t.Helper()
	reg := nodes.NewRegistry()
	for _, k := range kinds {
		require.NoError(t, reg.Register(&stubExecutor{kind: k}))
	}
	return reg
}

func TestCompileGraph_UnknownKindFails(t *testing.T) {
	reg := testRegistry(t, schema.NodeKindManual)
	def := &schema.WorkflowDefinition{
		ID:   "wf-1",
		Name: "test",
		Nodes: []schema.WorkflowNode{
			{ID: "start", Kind: schema.NodeKindManual, IsEntryPoint: true},
			{ID: "mystery", Kind: schema.NodeKind("does_not_exist")},
		},
	}

	_, err := CompileGraph(def, reg)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeUnknownNodeKind, schema.CodeOf(err))
}

func TestCompileGraph_DuplicateNodeID(t *testing.T) {
	reg := testRegistry(t, schema.NodeKindManual)
	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Nodes: []schema.WorkflowNode{
			{ID: "a", Kind: schema.NodeKindManual, IsEntryPoint: true},
			{ID: "a", Kind: schema.NodeKindManual, IsEntryPoint: true},
		},
	}

	_, err := CompileGraph(def, reg)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestCompileGraph_DanglingConnection(t *testing.T) {
	reg := testRegistry(t, schema.NodeKindManual)
	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Nodes: []schema.WorkflowNode{
			{ID: "a", Kind: schema.NodeKindManual, IsEntryPoint: true},
		},
		Connections: []schema.WorkflowConnection{
			{ID: "c1", FromNodeID: "a", ToNodeID: "ghost"},
		},
	}

	_, err := CompileGraph(def, reg)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestGraph_NextPicksLowestOrder(t *testing.T) {
	reg := testRegistry(t, schema.NodeKindManual, schema.NodeKindNotify)
	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Nodes: []schema.WorkflowNode{
			{ID: "a", Kind: schema.NodeKindManual, IsEntryPoint: true},
			{ID: "b", Kind: schema.NodeKindNotify},
			{ID: "c", Kind: schema.NodeKindNotify},
		},
		Connections: []schema.WorkflowConnection{
			{ID: "c1", FromNodeID: "a", ToNodeID: "b", Order: 5},
			{ID: "c2", FromNodeID: "a", ToNodeID: "c", Order: 1},
		},
	}

	g, err := CompileGraph(def, reg)
	require.NoError(t, err)

	next, ok := g.Next("a", schema.OutputDefault)
	require.True(t, ok)
	assert.Equal(t, "c", next.ID)
}

func TestGraph_NextTieBreaksOnConnectionID(t *testing.T) {
	reg := testRegistry(t, schema.NodeKindManual, schema.NodeKindNotify)
	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Nodes: []schema.WorkflowNode{
			{ID: "a", Kind: schema.NodeKindManual, IsEntryPoint: true},
			{ID: "b", Kind: schema.NodeKindNotify},
			{ID: "c", Kind: schema.NodeKindNotify},
		},
		Connections: []schema.WorkflowConnection{
			{ID: "z-conn", FromNodeID: "a", ToNodeID: "b", Order: 1},
			{ID: "a-conn", FromNodeID: "a", ToNodeID: "c", Order: 1},
		},
	}

	g, err := CompileGraph(def, reg)
	require.NoError(t, err)

	// Same order on both edges; the connection ID decides deterministically.
	next, ok := g.Next("a", "")
	require.True(t, ok)
	assert.Equal(t, "c", next.ID)
}

func TestGraph_EmptyOutputNameMeansDefault(t *testing.T) {
	reg := testRegistry(t, schema.NodeKindManual, schema.NodeKindNotify)
	def := &schema.WorkflowDefinition{
		ID: "wf-1",
		Nodes: []schema.WorkflowNode{
			{ID: "a", Kind: schema.NodeKindManual, IsEntryPoint: true},
			{ID: "b", Kind: schema.NodeKindNotify},
		},
		Connections: []schema.WorkflowConnection{
			{ID: "c1", FromNodeID: "a", ToNodeID: "b"},
		},
	}

	g, err := CompileGraph(def, reg)
	require.NoError(t, err)

	next, ok := g.Next("a", schema.OutputDefault)
	require.True(t, ok)
	assert.Equal(t, "b", next.ID)
	assert.True(t, g.HasRoute("a", ""))
	assert.False(t, g.HasRoute("b", schema.OutputDefault))
}
