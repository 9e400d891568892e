package docs

import (
	"context"
	"sync"

	"github.com/docuflow/docuflow/pkg/schema"
)

// MemoryDirectory is an in-memory Directory for tests and standalone serving.
type MemoryDirectory struct {
	mu   sync.RWMutex
	docs map[string]*schema.Document
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{docs: make(map[string]*schema.Document)}
}

// Put inserts or replaces a document.
func (d *MemoryDirectory) Put(doc *schema.Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *doc
	d.docs[doc.ID] = &cp
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (*schema.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "document %q not found", id)
	}
	cp := *doc
	cp.TagIDs = append([]string(nil), doc.TagIDs...)
	cp.TagNames = append([]string(nil), doc.TagNames...)
	return &cp, nil
}

func (d *MemoryDirectory) SetValidationStatus(_ context.Context, id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "document %q not found", id)
	}
	doc.ValidationStatus = status
	return nil
}

func (d *MemoryDirectory) AddTag(_ context.Context, id, tagID, tagName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "document %q not found", id)
	}
	if tagID != "" && !doc.HasTagID(tagID) {
		doc.TagIDs = append(doc.TagIDs, tagID)
	}
	if tagName != "" {
		for _, n := range doc.TagNames {
			if n == tagName {
				return nil
			}
		}
		doc.TagNames = append(doc.TagNames, tagName)
	}
	return nil
}
