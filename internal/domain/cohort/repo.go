package cohort

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PatientRepository reads the cohort from the clinical store and moves
// patient statuses forward.
type PatientRepository interface {
	// ListEligible returns pending patients aged thresholdYears or older at
	// asOf, ordered by birth date then ID.
	ListEligible(ctx context.Context, asOf time.Time, thresholdYears, limit int) ([]*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByNationalID(ctx context.Context, nationalID string) (*Patient, error)
	// MarkTransferred is a no-op when the patient is already transferred.
	MarkTransferred(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// ClinicRepository reads the receiving clinic registered on a patient.
type ClinicRepository interface {
	// ExternalClinicFor returns nil with no error when no clinic is
	// registered for the patient.
	ExternalClinicFor(ctx context.Context, patientID uuid.UUID) (*ExternalClinic, error)
}
