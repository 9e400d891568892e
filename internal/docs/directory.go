// Package docs is the boundary to the document lifecycle collaborators.
// The engine only needs a read-mostly view of documents plus the two
// mutations its action nodes perform; storage, OCR and thumbnailing live
// elsewhere.
package docs

import (
	"context"

	"github.com/docuflow/docuflow/pkg/schema"
)

// Directory is the engine-facing document contract.
type Directory interface {
	Get(ctx context.Context, id string) (*schema.Document, error)
	SetValidationStatus(ctx context.Context, id, status string) error
	AddTag(ctx context.Context, id, tagID, tagName string) error
}
