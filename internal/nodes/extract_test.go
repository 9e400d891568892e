package nodes

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/pkg/schema"
)

func TestExtractExecutor_SingleResult(t *testing.T) {
	exec := NewExtractExecutor()

	doc := &schema.Document{
		ID:       "d1",
		Metadata: json.RawMessage(`{"invoice": {"total": 123.45}}`),
	}
	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindExtract,
		map[string]any{"query": ".document.metadata.invoice.total", "target": "total"}, nil, doc))
	require.NoError(t, err)
	assert.Equal(t, 123.45, res.Data["total"])
}

func TestExtractExecutor_MultipleResultsCollected(t *testing.T) {
	exec := NewExtractExecutor()

	doc := &schema.Document{ID: "d1", TagNames: []string{"urgent", "finance"}}
	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindExtract,
		map[string]any{"query": ".document.tag_names[]", "target": "tags"}, nil, doc))
	require.NoError(t, err)
	assert.Equal(t, []any{"urgent", "finance"}, res.Data["tags"])
}

func TestExtractExecutor_NoResultStoresNil(t *testing.T) {
	exec := NewExtractExecutor()

	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindExtract,
		map[string]any{"query": "empty", "target": "nothing"}, nil, nil))
	require.NoError(t, err)
	require.Contains(t, res.Data, "nothing")
	assert.Nil(t, res.Data["nothing"])
}

func TestExtractExecutor_ReadsContextBag(t *testing.T) {
	exec := NewExtractExecutor()

	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindExtract,
		map[string]any{"query": ".context.items | length", "target": "count"},
		map[string]any{"items": []any{"a", "b", "c"}}, nil))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Data["count"])
}

func TestExtractExecutor_ParseErrorIsValidation(t *testing.T) {
	exec := NewExtractExecutor()

	err := exec.Validate(map[string]any{"query": ".document |", "target": "x"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestExtractExecutor_RuntimeErrorFailsNode(t *testing.T) {
	exec := NewExtractExecutor()

	_, err := exec.Execute(context.Background(), execIn(schema.NodeKindExtract,
		map[string]any{"query": ".document.title | tonumber", "target": "x"}, nil,
		&schema.Document{ID: "d1", Title: "not a number"}))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNodeFailed, schema.CodeOf(err))
}

func TestExtractExecutor_EnvAccessBlocked(t *testing.T) {
	exec := NewExtractExecutor()

	res, err := exec.Execute(context.Background(), execIn(schema.NodeKindExtract,
		map[string]any{"query": `$ENV.HOME`, "target": "leak"}, nil, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Data["leak"])
}
