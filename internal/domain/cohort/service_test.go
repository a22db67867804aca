package cohort

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	items map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{items: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) add(p *Patient) *Patient {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	m.items[p.ID] = p
	return p
}

func (m *mockPatientRepo) ListEligible(_ context.Context, asOf time.Time, thresholdYears, limit int) ([]*Patient, error) {
	var result []*Patient
	for _, p := range m.items {
		if p.Eligible(asOf, thresholdYears) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].BirthDate.Equal(result[j].BirthDate) {
			return result[i].BirthDate.Before(result[j].BirthDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockPatientRepo) GetByNationalID(_ context.Context, nationalID string) (*Patient, error) {
	for _, p := range m.items {
		if p.NationalID == nationalID {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPatientRepo) MarkTransferred(_ context.Context, id uuid.UUID) error {
	p, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	if p.Status == StatusTransferred {
		return nil
	}
	p.Status = StatusTransferred
	now := time.Now()
	p.TransferredAt = &now
	return nil
}

func (m *mockPatientRepo) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	p, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	if p.Status == StatusTransferred {
		return nil
	}
	p.Status = StatusFailed
	p.FailureReason = &reason
	return nil
}

type mockClinicRepo struct {
	clinics map[uuid.UUID]*ExternalClinic
}

func newMockClinicRepo() *mockClinicRepo {
	return &mockClinicRepo{clinics: make(map[uuid.UUID]*ExternalClinic)}
}

func (m *mockClinicRepo) ExternalClinicFor(_ context.Context, patientID uuid.UUID) (*ExternalClinic, error) {
	return m.clinics[patientID], nil
}

// -- Tests --

func TestListEligible_FiltersAndOrders(t *testing.T) {
	patients := newMockPatientRepo()
	clinics := newMockClinicRepo()
	svc := NewService(patients, clinics)

	asOf := date(2026, 8, 1)
	older := patients.add(&Patient{NationalID: "1", BirthDate: date(2003, 1, 1)})
	younger := patients.add(&Patient{NationalID: "2", BirthDate: date(2004, 5, 1)})
	patients.add(&Patient{NationalID: "3", BirthDate: date(2006, 1, 1)}) // 20, not eligible
	patients.add(&Patient{NationalID: "4", BirthDate: date(2003, 6, 1), Status: StatusTransferred})

	got, err := svc.ListEligible(context.Background(), asOf, 22, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 eligible patients, got %d", len(got))
	}
	if got[0].ID != older.ID || got[1].ID != younger.ID {
		t.Error("expected patients ordered by birth date")
	}
}

func TestListEligible_RejectsBadThreshold(t *testing.T) {
	svc := NewService(newMockPatientRepo(), newMockClinicRepo())
	if _, err := svc.ListEligible(context.Background(), time.Now(), 0, 10); err == nil {
		t.Error("expected error for zero threshold")
	}
}

func TestReceivingClinic(t *testing.T) {
	patients := newMockPatientRepo()
	clinics := newMockClinicRepo()
	svc := NewService(patients, clinics)

	p := patients.add(&Patient{NationalID: "1", BirthDate: date(2003, 1, 1)})
	clinics.clinics[p.ID] = &ExternalClinic{
		PatientID:      p.ID,
		ProviderNumber: "470001",
		Name:           "Private Dental Clinic",
		Phone:          "12345678",
	}

	clinic, err := svc.ReceivingClinic(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clinic.ProviderNumber != "470001" {
		t.Errorf("unexpected provider number %s", clinic.ProviderNumber)
	}
}

func TestReceivingClinic_BusinessRules(t *testing.T) {
	patients := newMockPatientRepo()
	clinics := newMockClinicRepo()
	svc := NewService(patients, clinics)

	p := patients.add(&Patient{NationalID: "1", BirthDate: date(2003, 1, 1)})

	if _, err := svc.ReceivingClinic(context.Background(), p.ID); !errors.Is(err, ErrNoExternalClinic) {
		t.Errorf("expected ErrNoExternalClinic, got %v", err)
	}

	clinics.clinics[p.ID] = &ExternalClinic{PatientID: p.ID, Phone: "12345678"}
	if _, err := svc.ReceivingClinic(context.Background(), p.ID); !errors.Is(err, ErrMissingProviderNumber) {
		t.Errorf("expected ErrMissingProviderNumber, got %v", err)
	}

	clinics.clinics[p.ID] = &ExternalClinic{PatientID: p.ID, ProviderNumber: "470001"}
	if _, err := svc.ReceivingClinic(context.Background(), p.ID); !errors.Is(err, ErrMissingPhone) {
		t.Errorf("expected ErrMissingPhone, got %v", err)
	}
}

func TestMarkTransferred_Idempotent(t *testing.T) {
	patients := newMockPatientRepo()
	svc := NewService(patients, newMockClinicRepo())

	p := patients.add(&Patient{NationalID: "1", BirthDate: date(2003, 1, 1)})
	if err := svc.MarkTransferred(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := p.TransferredAt

	if err := svc.MarkTransferred(context.Background(), p.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.TransferredAt != first {
		t.Error("second MarkTransferred should be a no-op")
	}

	// Failing a transferred patient must not regress the status.
	if err := svc.MarkFailed(context.Background(), p.ID, "late failure"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusTransferred {
		t.Errorf("expected status to stay transferred, got %s", p.Status)
	}
}
