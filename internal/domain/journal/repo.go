package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ReceiptRepository interface {
	// Create stores the receipt row together with the receipt PDF.
	Create(ctx context.Context, r *Receipt, pdf []byte) (*Receipt, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error)
	// List returns receipts newest first, optionally filtered by patient.
	List(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Receipt, int, error)
	// ExistsSince reports whether the patient already has a receipt created
	// at or after the cutoff.
	ExistsSince(ctx context.Context, patientID uuid.UUID, since time.Time) (bool, error)
}

type NoteRepository interface {
	Create(ctx context.Context, n *AdministrativeNote) (*AdministrativeNote, error)
	ExistsSince(ctx context.Context, patientID uuid.UUID, since time.Time) (bool, error)
}

type RunRepository interface {
	CreateRun(ctx context.Context, dryRun bool) (*Run, error)
	FinishRun(ctx context.Context, run *Run) error
	AddStep(ctx context.Context, s *StepOutcome) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error)
	ListSteps(ctx context.Context, runID uuid.UUID) ([]*StepOutcome, error)
}
