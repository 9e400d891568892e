package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuflow/docuflow/internal/docs"
	"github.com/docuflow/docuflow/pkg/schema"
)

type fakeExecutor struct {
	kind schema.NodeKind
}

func (f fakeExecutor) Kind() schema.NodeKind             { return f.kind }
func (f fakeExecutor) Schema() []schema.ConfigField      { return nil }
func (f fakeExecutor) Validate(map[string]any) error     { return nil }
func (f fakeExecutor) Execute(context.Context, ExecContext) (*Result, error) {
	return &Result{}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(fakeExecutor{kind: "custom"}))

	exec, err := reg.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, schema.NodeKind("custom"), exec.Kind())
	assert.True(t, reg.Has("custom"))
	assert.False(t, reg.Has("missing"))
}

func TestRegistry_DuplicateKindRejected(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(fakeExecutor{kind: "custom"}))

	err := reg.Register(fakeExecutor{kind: "custom"})
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, schema.CodeOf(err))
}

func TestRegistry_UnknownKind(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Get("nope")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeUnknownNodeKind, schema.CodeOf(err))
}

func TestRegistry_NilAndEmptyExecutorRejected(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(fakeExecutor{kind: ""}))
}

func TestRegistry_KindsSorted(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(fakeExecutor{kind: "zeta"}, fakeExecutor{kind: "alpha"}, fakeExecutor{kind: "mid"})

	assert.Equal(t, []schema.NodeKind{"alpha", "mid", "zeta"}, reg.Kinds())
}

func TestRegisterBuiltins_CoversAllKinds(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, Deps{Directory: docs.NewMemoryDirectory()}))

	for _, kind := range []schema.NodeKind{
		schema.NodeKindDocumentAdded,
		schema.NodeKindTagAdded,
		schema.NodeKindValidationChanged,
		schema.NodeKindManual,
		schema.NodeKindUpload,
		schema.NodeKindScan,
		schema.NodeKindCondition,
		schema.NodeKindSetVariable,
		schema.NodeKindExtract,
		schema.NodeKindApproval,
		schema.NodeKindWait,
		schema.NodeKindNotify,
		schema.NodeKindSetStatus,
		schema.NodeKindAddTag,
	} {
		assert.True(t, reg.Has(kind), "kind %s not registered", kind)
	}

	schemas := reg.Schemas()
	assert.Contains(t, schemas, schema.NodeKindApproval)
	assert.Contains(t, schemas, schema.NodeKindNotify)
}
