package cohort

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Business-rule violations detected while validating a patient's receiving
// clinic. These fail the patient, not the batch.
var (
	ErrNoExternalClinic      = errors.New("no external clinic registered for patient")
	ErrMissingProviderNumber = errors.New("external clinic has no provider number")
	ErrMissingPhone          = errors.New("external clinic has no phone number")
)

const defaultListLimit = 500

type Service struct {
	patients PatientRepository
	clinics  ClinicRepository
}

func NewService(patients PatientRepository, clinics ClinicRepository) *Service {
	return &Service{patients: patients, clinics: clinics}
}

// ListEligible returns the cohort for this run: pending patients at or over
// the age threshold, in a stable order.
func (s *Service) ListEligible(ctx context.Context, asOf time.Time, thresholdYears, limit int) ([]*Patient, error) {
	if thresholdYears <= 0 {
		return nil, fmt.Errorf("age threshold must be positive, got %d", thresholdYears)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.patients.ListEligible(ctx, asOf, thresholdYears, limit)
}

// ReceivingClinic returns the validated external clinic for a patient. A
// missing clinic, provider number or phone number is a business-rule error.
func (s *Service) ReceivingClinic(ctx context.Context, patientID uuid.UUID) (*ExternalClinic, error) {
	clinic, err := s.clinics.ExternalClinicFor(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load external clinic: %w", err)
	}
	if clinic == nil {
		return nil, ErrNoExternalClinic
	}
	if clinic.ProviderNumber == "" {
		return nil, ErrMissingProviderNumber
	}
	if clinic.Phone == "" {
		return nil, ErrMissingPhone
	}
	return clinic, nil
}

func (s *Service) MarkTransferred(ctx context.Context, id uuid.UUID) error {
	return s.patients.MarkTransferred(ctx, id)
}

func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return s.patients.MarkFailed(ctx, id, reason)
}
