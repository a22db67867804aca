package records

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository reads and writes the clinical document table. Reads filter on
// active documents only.
type Repository interface {
	// LatestOfType returns the newest active document of the given type for
	// the patient, or nil when none exists.
	LatestOfType(ctx context.Context, patientID uuid.UUID, docType string) (*Document, error)
	// ListOfType returns all active documents of the given type for the
	// patient, newest first.
	ListOfType(ctx context.Context, patientID uuid.UUID, docType string) ([]*Document, error)
	// ExistsSince reports whether an active document of the given type was
	// created at or after the cutoff.
	ExistsSince(ctx context.Context, patientID uuid.UUID, docType string, since time.Time) (bool, error)
	// Content returns the stored payload of a document.
	Content(ctx context.Context, id uuid.UUID) ([]byte, error)
	// Create files a new document with its payload and returns it with its
	// generated fields.
	Create(ctx context.Context, doc *Document, content []byte) (*Document, error)
}

// Printer produces the record printout payload for a patient. The clinical
// system renders it; this service only triggers and stores the result.
type Printer interface {
	PrintRecord(ctx context.Context, patientID uuid.UUID) ([]byte, error)
}
