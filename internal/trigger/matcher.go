// Package trigger holds the pure predicates that decide whether a lifecycle
// event should start a workflow at a given entry node. Matchers may read the
// subject document but never mutate state.
package trigger

import (
	"strings"

	"github.com/docuflow/docuflow/pkg/schema"
)

// Filter config keys understood by the entry-node kinds. Every filter is
// optional; filters that are present are combined with logical AND, and an
// absent key means "no constraint".
const (
	KeyDocumentTypeIDs   = "filter_document_type_ids"
	KeyDocumentTypeCodes = "filter_document_type_codes"
	KeyCorrespondentIDs  = "filter_correspondent_ids"
	KeyTagIDs            = "filter_tag_ids"
	KeyAmountMin         = "filter_amount_min"
	KeyAmountMax         = "filter_amount_max"
	KeyFilename          = "filter_filename"
	KeySources           = "filter_sources"
	KeyTriggerTagIDs     = "trigger_tag_ids"
	KeyTriggerTagNames   = "trigger_tag_names"
	KeyStatuses          = "filter_statuses"
	KeyValidationLevel   = "filter_validation_level"
)

// Event context keys the collaborators provide alongside the event name.
const (
	EventKeyTagID   = "tag_id"
	EventKeyTagName = "tag_name"
	EventKeyStatus  = "status"
	EventKeySource  = "source"
)

// ShouldTrigger decides whether an entry node of the given kind matches the
// event. Non-trigger kinds never match.
func ShouldTrigger(kind schema.NodeKind, config map[string]any, eventName string, doc *schema.Document, event map[string]any) bool {
	switch kind {
	case schema.NodeKindDocumentAdded:
		return eventName == schema.EventDocumentAdded && matchDocumentFilters(config, doc)
	case schema.NodeKindTagAdded:
		return eventName == schema.EventTagAdded && matchTagAdded(config, event)
	case schema.NodeKindValidationChanged:
		return eventName == schema.EventValidationChanged && matchValidationChanged(config, doc, event)
	case schema.NodeKindManual:
		return eventName == schema.EventManual
	case schema.NodeKindUpload:
		return eventName == schema.EventUpload
	case schema.NodeKindScan:
		// Scan is driven by the external folder watcher; the engine only
		// records the activation.
		return eventName == schema.EventScan
	}
	return false
}

// matchDocumentFilters applies the document.added filter vocabulary.
func matchDocumentFilters(config map[string]any, doc *schema.Document) bool {
	if doc == nil {
		return false
	}
	if ids := stringList(config, KeyDocumentTypeIDs); len(ids) > 0 && !contains(ids, doc.DocumentTypeID) {
		return false
	}
	if codes := stringList(config, KeyDocumentTypeCodes); len(codes) > 0 && !containsFold(codes, doc.DocumentTypeCode) {
		return false
	}
	if ids := stringList(config, KeyCorrespondentIDs); len(ids) > 0 && !contains(ids, doc.CorrespondentID) {
		return false
	}
	// Tag membership: the document must carry at least one of the listed tags.
	if ids := stringList(config, KeyTagIDs); len(ids) > 0 {
		any := false
		for _, id := range ids {
			if doc.HasTagID(id) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if !matchAmount(config, doc.Amount) {
		return false
	}
	if pattern := stringValue(config, KeyFilename); pattern != "" && !Match(pattern, doc.Filename) {
		return false
	}
	if sources := stringList(config, KeySources); len(sources) > 0 && !containsFold(sources, doc.Source) {
		return false
	}
	return true
}

// matchTagAdded applies the tag.added filter vocabulary. With no filter
// configured, any tag addition matches. Unlike the document filters, the ID
// list and the name patterns combine as alternatives: both name the tag set
// to watch, and a tag listed by ID but not by name pattern should still
// fire the trigger.
func matchTagAdded(config map[string]any, event map[string]any) bool {
	tagID, _ := event[EventKeyTagID].(string)
	tagName, _ := event[EventKeyTagName].(string)

	ids := stringList(config, KeyTriggerTagIDs)
	names := stringList(config, KeyTriggerTagNames)
	if len(ids) == 0 && len(names) == 0 {
		return true
	}
	if len(ids) > 0 && contains(ids, tagID) {
		return true
	}
	if len(names) > 0 && MatchAny(names, tagName) {
		return true
	}
	return false
}

// matchValidationChanged applies the validation-status-changed vocabulary.
func matchValidationChanged(config map[string]any, doc *schema.Document, event map[string]any) bool {
	status, _ := event[EventKeyStatus].(string)
	if statuses := stringList(config, KeyStatuses); len(statuses) > 0 && !containsFold(statuses, status) {
		return false
	}
	if doc == nil {
		return len(stringList(config, KeyDocumentTypeIDs)) == 0 &&
			len(stringList(config, KeyDocumentTypeCodes)) == 0 &&
			len(stringList(config, KeyCorrespondentIDs)) == 0 &&
			numberValue(config, KeyAmountMin) == nil &&
			numberValue(config, KeyAmountMax) == nil &&
			numberValue(config, KeyValidationLevel) == nil
	}
	if ids := stringList(config, KeyDocumentTypeIDs); len(ids) > 0 && !contains(ids, doc.DocumentTypeID) {
		return false
	}
	if codes := stringList(config, KeyDocumentTypeCodes); len(codes) > 0 && !containsFold(codes, doc.DocumentTypeCode) {
		return false
	}
	if ids := stringList(config, KeyCorrespondentIDs); len(ids) > 0 && !contains(ids, doc.CorrespondentID) {
		return false
	}
	if !matchAmount(config, doc.Amount) {
		return false
	}
	if lvl := numberValue(config, KeyValidationLevel); lvl != nil && int(*lvl) != doc.ValidationLevel {
		return false
	}
	return true
}

// matchAmount checks the inclusive min/max range. A filter on amount never
// matches a document without one.
func matchAmount(config map[string]any, amount *float64) bool {
	min := numberValue(config, KeyAmountMin)
	max := numberValue(config, KeyAmountMax)
	if min == nil && max == nil {
		return true
	}
	if amount == nil {
		return false
	}
	if min != nil && *amount < *min {
		return false
	}
	if max != nil && *amount > *max {
		return false
	}
	return true
}

// --- Config accessors (filters arrive as decoded JSON) ---

func stringValue(config map[string]any, key string) string {
	v, _ := config[key].(string)
	return v
}

func stringList(config map[string]any, key string) []string {
	switch v := config[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func numberValue(config map[string]any, key string) *float64 {
	switch v := config[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
