package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/schema"
)

func TestSetVariableExecutor_AssignsResult(t *testing.T) {
	exec := NewSetVariableExecutor()

	doc := &schema.Document{ID: "d1", Title: "Q1 report"}
	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindSetVariable,
		map[string]any{"name": "label", "expression": `document.title + " (reviewed)"`}, nil, doc))
	require.NoError(t, err)
	assert.Equal(t, "Q1 report (reviewed)", res.Data["label"])
	assert.Empty(t, res.OutputName)
}

func TestSetVariableExecutor_ReadsContextBag(t *testing.T) {
	exec := NewSetVariableExecutor()

	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindSetVariable,
		map[string]any{"name": "next", "expression": `context.count + 1`},
		map[string]any{"count": 2}, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Data["next"])
}

func TestSetVariableExecutor_CompileErrorIsValidation(t *testing.T) {
	exec := NewSetVariableExecutor()

	err := exec.Validate(map[string]any{"name": "x", "expression": "1 +"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestSetVariableExecutor_MissingConfig(t *testing.T) {
	exec := NewSetVariableExecutor()

	_, err := exec.Execute(context.Background(), execIn(schema.NodeKindSetVariable,
		map[string]any{"name": "x"}, nil, nil))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestSetVariableExecutor_CachesCompiledPrograms(t *testing.T) {
	exec := NewSetVariableExecutor()

	in := execIn(schema.NodeKindSetVariable,
		map[string]any{"name": "x", "expression": "1 + 1"}, nil, nil)
	_, err := exec.Execute(context.Background(), in)
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), in)
	require.NoError(t, err)

	exec.mu.RLock()
	defer exec.mu.RUnlock()
	assert.Len(t, exec.cache, 1)
}
