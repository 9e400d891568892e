package nodes

import (
	"context"

	"github.com/docuflow/docuflow/internal/trigger"
	"github.com/docuflow/docuflow/pkg/schema"
)

// TriggerExecutors returns the entry-node executors. Trigger matching happens
// before an execution exists (internal/trigger); by the time one of these
// runs, the event already qualified, so they only route onward. The
// validation trigger additionally branches per resulting status.
func TriggerExecutors() []Executor {
	return []Executor{
		passThroughTrigger{kind: schema.NodeKindDocumentAdded, fields: documentAddedFields},
		passThroughTrigger{kind: schema.NodeKindTagAdded, fields: tagAddedFields},
		passThroughTrigger{kind: schema.NodeKindManual, fields: nil},
		passThroughTrigger{kind: schema.NodeKindUpload, fields: nil},
		passThroughTrigger{kind: schema.NodeKindScan, fields: nil},
		validationTrigger{},
	}
}

var documentAddedFields = []schema.ConfigField{
	{Key: trigger.KeyDocumentTypeIDs, Type: TypeStringList, Description: "Match any of these document type IDs"},
	{Key: trigger.KeyDocumentTypeCodes, Type: TypeStringList, Description: "Match any of these document type codes"},
	{Key: trigger.KeyCorrespondentIDs, Type: TypeStringList, Description: "Match any of these correspondent IDs"},
	{Key: trigger.KeyTagIDs, Type: TypeStringList, Description: "Document must carry at least one of these tags"},
	{Key: trigger.KeyAmountMin, Type: TypeNumber, Description: "Inclusive lower amount bound"},
	{Key: trigger.KeyAmountMax, Type: TypeNumber, Description: "Inclusive upper amount bound"},
	{Key: trigger.KeyFilename, Type: TypeString, Description: "Filename glob pattern (* and ?)"},
	{Key: trigger.KeySources, Type: TypeStringList, Description: "Ingestion sources: consume, upload, api"},
}

var tagAddedFields = []schema.ConfigField{
	{Key: trigger.KeyTriggerTagIDs, Type: TypeStringList, Description: "Match any of these tag IDs"},
	{Key: trigger.KeyTriggerTagNames, Type: TypeStringList, Description: "Case-insensitive tag name globs"},
}

var validationFields = []schema.ConfigField{
	{Key: trigger.KeyStatuses, Type: TypeStringList, Description: "Match any of these resulting statuses"},
	{Key: trigger.KeyDocumentTypeIDs, Type: TypeStringList, Description: "Match any of these document type IDs"},
	{Key: trigger.KeyDocumentTypeCodes, Type: TypeStringList, Description: "Match any of these document type codes"},
	{Key: trigger.KeyCorrespondentIDs, Type: TypeStringList, Description: "Match any of these correspondent IDs"},
	{Key: trigger.KeyAmountMin, Type: TypeNumber, Description: "Inclusive lower amount bound"},
	{Key: trigger.KeyAmountMax, Type: TypeNumber, Description: "Inclusive upper amount bound"},
	{Key: trigger.KeyValidationLevel, Type: TypeInteger, Description: "Match this validation level"},
}

type passThroughTrigger struct {
	kind   schema.NodeKind
	fields []schema.ConfigField
}

func (t passThroughTrigger) Kind() schema.NodeKind        { return t.kind }
func (t passThroughTrigger) Schema() []schema.ConfigField { return t.fields }

func (t passThroughTrigger) Validate(config map[string]any) error {
	return requireFields(t.fields, config)
}

func (t passThroughTrigger) Execute(_ context.Context, _ ExecContext) (*Result, error) {
	return &Result{OutputName: schema.OutputDefault}, nil
}

// validationTrigger exposes approved/rejected/default outputs so branches
// downstream can react differently per outcome.
type validationTrigger struct{}

func (validationTrigger) Kind() schema.NodeKind        { return schema.NodeKindValidationChanged }
func (validationTrigger) Schema() []schema.ConfigField { return validationFields }

func (validationTrigger) Validate(config map[string]any) error {
	return requireFields(validationFields, config)
}

func (validationTrigger) Execute(_ context.Context, in ExecContext) (*Result, error) {
	status, _ := in.Bag[trigger.EventKeyStatus].(string)
	output := schema.OutputDefault
	switch status {
	case schema.ValidationApproved:
		output = schema.OutputApproved
	case schema.ValidationRejected:
		output = schema.OutputRejected
	}
	return &Result{OutputName: output}, nil
}
