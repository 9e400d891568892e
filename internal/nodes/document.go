package nodes

import (
	"context"

	"github.com/docuflow/docuflow/internal/docs"
	"github.com/docuflow/docuflow/pkg/schema"
)

// DocumentExecutors returns the action nodes that mutate the subject
// document through the directory. Both mutations are idempotent, so a step
// replayed after a crash converges on the same document state.
func DocumentExecutors(dir docs.Directory) []Executor {
	return []Executor{
		&setStatusExecutor{dir: dir},
		&addTagExecutor{dir: dir},
	}
}

var setStatusFields = []schema.ConfigField{
	{Key: "status", Type: TypeString, Required: true, Description: "Target validation status: pending, approved or rejected"},
}

type setStatusExecutor struct {
	dir docs.Directory
}

func (e *setStatusExecutor) Kind() schema.NodeKind        { return schema.NodeKindSetStatus }
func (e *setStatusExecutor) Schema() []schema.ConfigField { return setStatusFields }

func (e *setStatusExecutor) Validate(config map[string]any) error {
	if err := requireFields(setStatusFields, config); err != nil {
		return err
	}
	switch configString(config, "status") {
	case schema.ValidationPending, schema.ValidationApproved, schema.ValidationRejected:
		return nil
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "unknown validation status %q", configString(config, "status"))
}

func (e *setStatusExecutor) Execute(ctx context.Context, in ExecContext) (*Result, error) {
	status := configString(in.Config(), "status")
	if err := e.dir.SetValidationStatus(ctx, in.DocumentID, status); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
			"set document status: %s", err.Error()).WithCause(err).WithNode(in.Node.ID)
	}
	return &Result{Data: map[string]any{"document_status": status}}, nil
}

var addTagFields = []schema.ConfigField{
	{Key: "tag_id", Type: TypeString, Required: true, Description: "Tag ID to attach"},
	{Key: "tag_name", Type: TypeString, Description: "Tag display name"},
}

type addTagExecutor struct {
	dir docs.Directory
}

func (e *addTagExecutor) Kind() schema.NodeKind        { return schema.NodeKindAddTag }
func (e *addTagExecutor) Schema() []schema.ConfigField { return addTagFields }

func (e *addTagExecutor) Validate(config map[string]any) error {
	return requireFields(addTagFields, config)
}

func (e *addTagExecutor) Execute(ctx context.Context, in ExecContext) (*Result, error) {
	tagID := configString(in.Config(), "tag_id")
	tagName := configString(in.Config(), "tag_name")
	if err := e.dir.AddTag(ctx, in.DocumentID, tagID, tagName); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeNodeFailed,
			"add document tag: %s", err.Error()).WithCause(err).WithNode(in.Node.ID)
	}
	return &Result{Data: map[string]any{"tag_added": tagID}}, nil
}
