package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateReceipt = errors.New("journal: receipt already recorded for patient")
	ErrEmptyReceipt     = errors.New("journal: receipt PDF is empty")
)

type Service struct {
	receipts          ReceiptRepository
	notes             NoteRepository
	runs              RunRepository
	recheckWindowDays int
}

func NewService(receipts ReceiptRepository, notes NoteRepository, runs RunRepository, recheckWindowDays int) *Service {
	return &Service{receipts: receipts, notes: notes, runs: runs, recheckWindowDays: recheckWindowDays}
}

// RecordReceipt stores the portal receipt for a completed transfer. The
// recent-receipt guard keeps a rerun from writing a second receipt for the
// same handover.
func (s *Service) RecordReceipt(ctx context.Context, patientID uuid.UUID, submissionID, subject string, pdf []byte, now time.Time) (*Receipt, error) {
	if len(pdf) == 0 {
		return nil, ErrEmptyReceipt
	}
	exists, err := s.receipts.ExistsSince(ctx, patientID, s.windowStart(now))
	if err != nil {
		return nil, fmt.Errorf("check for existing receipt: %w", err)
	}
	if exists {
		return nil, ErrDuplicateReceipt
	}

	sum := sha256.Sum256(pdf)
	rec := &Receipt{
		PatientID:    patientID,
		SubmissionID: submissionID,
		Subject:      subject,
		FileName:     fmt.Sprintf("receipt_%s.pdf", submissionID),
		SHA256:       hex.EncodeToString(sum[:]),
	}
	created, err := s.receipts.Create(ctx, rec, pdf)
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	return created, nil
}

// HasRecentReceipt reports whether the patient already has a receipt within
// the recheck window.
func (s *Service) HasRecentReceipt(ctx context.Context, patientID uuid.UUID, now time.Time) (bool, error) {
	return s.receipts.ExistsSince(ctx, patientID, s.windowStart(now))
}

// EnsureNote writes the administrative journal note unless one was already
// written within the recheck window. Reports whether a note was created.
func (s *Service) EnsureNote(ctx context.Context, patientID uuid.UUID, body string, now time.Time) (bool, error) {
	exists, err := s.notes.ExistsSince(ctx, patientID, s.windowStart(now))
	if err != nil {
		return false, fmt.Errorf("check for existing note: %w", err)
	}
	if exists {
		return false, nil
	}
	if _, err := s.notes.Create(ctx, &AdministrativeNote{PatientID: patientID, Body: body}); err != nil {
		return false, fmt.Errorf("write administrative note: %w", err)
	}
	return true, nil
}

func (s *Service) windowStart(now time.Time) time.Time {
	return now.AddDate(0, 0, -s.recheckWindowDays)
}

func (s *Service) StartRun(ctx context.Context, dryRun bool) (*Run, error) {
	return s.runs.CreateRun(ctx, dryRun)
}

func (s *Service) RecordStep(ctx context.Context, runID, patientID uuid.UUID, step, status, detail string) error {
	return s.runs.AddStep(ctx, &StepOutcome{
		RunID:     runID,
		PatientID: patientID,
		Step:      step,
		Status:    status,
		Detail:    detail,
	})
}

func (s *Service) FinishRun(ctx context.Context, run *Run) error {
	return s.runs.FinishRun(ctx, run)
}

func (s *Service) GetReceipt(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	return s.receipts.GetByID(ctx, id)
}

func (s *Service) ListReceipts(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Receipt, int, error) {
	return s.receipts.List(ctx, patientID, limit, offset)
}

// RunDetail is a run together with its per-patient step outcomes.
type RunDetail struct {
	Run   *Run           `json:"run"`
	Steps []*StepOutcome `json:"steps"`
}

func (s *Service) GetRunDetail(ctx context.Context, id uuid.UUID) (*RunDetail, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil || run == nil {
		return nil, err
	}
	steps, err := s.runs.ListSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Steps: steps}, nil
}

func (s *Service) ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	return s.runs.ListRuns(ctx, limit, offset)
}
