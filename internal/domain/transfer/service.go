// Package transfer orchestrates the handover batch: for each eligible
// patient it validates the receiving clinic, gathers images and documents,
// submits them through the portal and records the outcome.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalops/handover/internal/domain/cohort"
	"github.com/dentalops/handover/internal/domain/imaging"
	"github.com/dentalops/handover/internal/domain/journal"
	"github.com/dentalops/handover/internal/domain/records"
	"github.com/dentalops/handover/internal/platform/portal"
	"github.com/dentalops/handover/internal/platform/staging"
)

// Step names recorded in the run log.
const (
	StepClinic     = "clinic_check"
	StepContractor = "contractor_check"
	StepArtifacts  = "artifact_fetch"
	StepRecords    = "record_documents"
	StepProbe      = "idempotence_probe"
	StepSubmit     = "submit"
	StepReceipt    = "receipt"
	StepNote       = "journal_note"
)

// Per-patient outcomes.
const (
	outcomeTransferred = "transferred"
	outcomeFailed      = "failed"
	outcomeSkipped     = "skipped"
)

type CohortDirectory interface {
	ListEligible(ctx context.Context, asOf time.Time, thresholdYears, limit int) ([]*cohort.Patient, error)
	ReceivingClinic(ctx context.Context, patientID uuid.UUID) (*cohort.ExternalClinic, error)
	MarkTransferred(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type ArtifactFetcher interface {
	FetchArtifacts(ctx context.Context, nationalID string) (*imaging.ArtifactSet, error)
}

type RecordCollector interface {
	EnsureRecordDocument(ctx context.Context, patientID uuid.UUID, now time.Time) (*records.Document, error)
	CollectForSubmission(ctx context.Context, patientID uuid.UUID, patientName string) ([]records.File, error)
}

type Journal interface {
	HasRecentReceipt(ctx context.Context, patientID uuid.UUID, now time.Time) (bool, error)
	RecordReceipt(ctx context.Context, patientID uuid.UUID, submissionID, subject string, pdf []byte, now time.Time) (*journal.Receipt, error)
	EnsureNote(ctx context.Context, patientID uuid.UUID, body string, now time.Time) (bool, error)
	StartRun(ctx context.Context, dryRun bool) (*journal.Run, error)
	RecordStep(ctx context.Context, runID, patientID uuid.UUID, step, status, detail string) error
	FinishRun(ctx context.Context, run *journal.Run) error
}

type Portal interface {
	Authenticate(ctx context.Context) error
	VerifyContractor(ctx context.Context, providerNumber, phone string) (*portal.ContractorCheck, error)
	AlreadySubmitted(ctx context.Context, subject string) (bool, error)
	Submit(ctx context.Context, sub *portal.Submission) (*portal.Ack, error)
}

// Options configure one batch run.
type Options struct {
	Subject           string
	AgeThresholdYears int
	Limit             int
	DryRun            bool
}

// Report summarizes a finished run.
type Report struct {
	RunID       uuid.UUID `json:"run_id"`
	DryRun      bool      `json:"dry_run"`
	Eligible    int       `json:"eligible"`
	Transferred int       `json:"transferred"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
}

type Service struct {
	cohort    CohortDirectory
	artifacts ArtifactFetcher
	records   RecordCollector
	journal   Journal
	portal    Portal
	stage     *staging.Stage
	logger    zerolog.Logger
}

func NewService(cohortDir CohortDirectory, artifacts ArtifactFetcher, collector RecordCollector,
	jrnl Journal, prtl Portal, stage *staging.Stage, logger zerolog.Logger) *Service {
	return &Service{
		cohort:    cohortDir,
		artifacts: artifacts,
		records:   collector,
		journal:   jrnl,
		portal:    prtl,
		stage:     stage,
		logger:    logger,
	}
}

// Run executes the batch once. Business-rule violations fail the patient and
// the batch continues; infrastructure errors abort the run.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Subject == "" {
		return nil, fmt.Errorf("transfer: submission subject is required")
	}

	if err := s.portal.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("portal authentication: %w", err)
	}

	run, err := s.journal.StartRun(ctx, opts.DryRun)
	if err != nil {
		return nil, fmt.Errorf("start run log: %w", err)
	}

	now := time.Now()
	patients, err := s.cohort.ListEligible(ctx, now, opts.AgeThresholdYears, opts.Limit)
	if err != nil {
		s.abortRun(ctx, run)
		return nil, fmt.Errorf("list eligible patients: %w", err)
	}
	run.Eligible = len(patients)

	s.logger.Info().
		Int("eligible", len(patients)).
		Bool("dry_run", opts.DryRun).
		Msg("starting handover batch")

	for _, p := range patients {
		if ctx.Err() != nil {
			s.abortRun(ctx, run)
			return nil, ctx.Err()
		}

		outcome, err := s.processPatient(ctx, run, p, opts, now)
		if cleanErr := s.stage.Clean(p.NationalID); cleanErr != nil {
			s.logger.Warn().Err(cleanErr).Str("patient_id", p.ID.String()).Msg("staging cleanup failed")
		}
		if err != nil {
			s.abortRun(ctx, run)
			return nil, err
		}

		switch outcome {
		case outcomeTransferred:
			run.Transferred++
		case outcomeFailed:
			run.Failed++
		case outcomeSkipped:
			run.Skipped++
		}
	}

	run.Status = journal.RunFinished
	if err := s.journal.FinishRun(ctx, run); err != nil {
		return nil, fmt.Errorf("finish run log: %w", err)
	}

	s.logger.Info().
		Int("transferred", run.Transferred).
		Int("failed", run.Failed).
		Int("skipped", run.Skipped).
		Msg("handover batch finished")

	return &Report{
		RunID:       run.ID,
		DryRun:      run.DryRun,
		Eligible:    run.Eligible,
		Transferred: run.Transferred,
		Failed:      run.Failed,
		Skipped:     run.Skipped,
	}, nil
}

func (s *Service) processPatient(ctx context.Context, run *journal.Run, p *cohort.Patient, opts Options, now time.Time) (string, error) {
	name := p.FullName()
	subject := fmt.Sprintf("%s %s", opts.Subject, name)
	log := s.logger.With().Str("patient_id", p.ID.String()).Logger()

	clinic, err := s.cohort.ReceivingClinic(ctx, p.ID)
	if err != nil {
		if isClinicRule(err) {
			return s.failPatient(ctx, run, p, StepClinic, businessErr("receiving clinic invalid", err), log)
		}
		s.step(ctx, run, p.ID, StepClinic, journal.StepFailed, err.Error())
		return "", fmt.Errorf("load receiving clinic for %s: %w", p.ID, err)
	}
	s.step(ctx, run, p.ID, StepClinic, journal.StepOK, clinic.ProviderNumber)

	check, err := s.portal.VerifyContractor(ctx, clinic.ProviderNumber, clinic.Phone)
	if err != nil {
		s.step(ctx, run, p.ID, StepContractor, journal.StepFailed, err.Error())
		return "", fmt.Errorf("verify contractor %s: %w", clinic.ProviderNumber, err)
	}
	if !check.Found {
		return s.failPatient(ctx, run, p, StepContractor,
			businessErr(fmt.Sprintf("provider number %s", clinic.ProviderNumber), portal.ErrContractorNotFound), log)
	}
	if !check.PhoneMatch {
		return s.failPatient(ctx, run, p, StepContractor,
			businessErr(fmt.Sprintf("phone number on file does not match contractor %s", clinic.ProviderNumber), nil), log)
	}
	s.step(ctx, run, p.ID, StepContractor, journal.StepOK, clinic.ProviderNumber)

	set, err := s.artifacts.FetchArtifacts(ctx, p.NationalID)
	if err != nil {
		s.step(ctx, run, p.ID, StepArtifacts, journal.StepFailed, err.Error())
		return "", fmt.Errorf("fetch artifacts for %s: %w", p.ID, err)
	}
	s.step(ctx, run, p.ID, StepArtifacts, journal.StepOK, fmt.Sprintf("%d images", set.Count))

	if _, err := s.records.EnsureRecordDocument(ctx, p.ID, now); err != nil {
		if errors.Is(err, records.ErrEmptyPrintout) {
			return s.failPatient(ctx, run, p, StepRecords, businessErr("record printout could not be produced", err), log)
		}
		s.step(ctx, run, p.ID, StepRecords, journal.StepFailed, err.Error())
		return "", fmt.Errorf("ensure record document for %s: %w", p.ID, err)
	}

	files, err := s.records.CollectForSubmission(ctx, p.ID, name)
	if err != nil {
		if errors.Is(err, records.ErrNoDocuments) {
			return s.failPatient(ctx, run, p, StepRecords, businessErr("no documents to submit", err), log)
		}
		s.step(ctx, run, p.ID, StepRecords, journal.StepFailed, err.Error())
		return "", fmt.Errorf("collect documents for %s: %w", p.ID, err)
	}
	s.step(ctx, run, p.ID, StepRecords, journal.StepOK, fmt.Sprintf("%d documents", len(files)))

	recent, err := s.journal.HasRecentReceipt(ctx, p.ID, now)
	if err != nil {
		s.step(ctx, run, p.ID, StepProbe, journal.StepFailed, err.Error())
		return "", fmt.Errorf("check recent receipt for %s: %w", p.ID, err)
	}
	sent := false
	if !recent {
		sent, err = s.portal.AlreadySubmitted(ctx, subject)
		if err != nil {
			s.step(ctx, run, p.ID, StepProbe, journal.StepFailed, err.Error())
			return "", fmt.Errorf("probe portal for %s: %w", p.ID, err)
		}
	}
	if recent || sent {
		s.step(ctx, run, p.ID, StepProbe, journal.StepSkipped, "already submitted")
		if err := s.cohort.MarkTransferred(ctx, p.ID); err != nil {
			return "", fmt.Errorf("mark patient %s transferred: %w", p.ID, err)
		}
		log.Info().Msg("patient already handed over, skipping")
		return outcomeSkipped, nil
	}
	s.step(ctx, run, p.ID, StepProbe, journal.StepOK, "")

	if opts.DryRun {
		s.step(ctx, run, p.ID, StepSubmit, journal.StepSkipped, "dry run")
		log.Info().Str("subject", subject).Msg("dry run, submission skipped")
		return outcomeSkipped, nil
	}

	attachments := make([]portal.Attachment, 0, len(files)+1)
	for _, f := range files {
		attachments = append(attachments, portal.Attachment{
			Filename:    f.Name,
			ContentType: f.ContentType,
			Data:        f.Data,
		})
	}
	if set.Count > 0 {
		bundle, err := os.ReadFile(set.BundlePath)
		if err != nil {
			return s.failPatient(ctx, run, p, StepSubmit, fmt.Errorf("read image bundle: %w", err), log)
		}
		attachments = append(attachments, portal.Attachment{
			Filename:    set.BundleName,
			ContentType: "application/zip",
			Data:        bundle,
		})
	}

	ack, err := s.portal.Submit(ctx, &portal.Submission{
		Subject:        subject,
		Body:           messageBody(name, clinic.Name),
		ProviderNumber: clinic.ProviderNumber,
		Attachments:    attachments,
	})
	if err != nil {
		if errors.Is(err, portal.ErrUnauthorized) {
			s.step(ctx, run, p.ID, StepSubmit, journal.StepFailed, err.Error())
			return "", fmt.Errorf("submit for %s: %w", p.ID, err)
		}
		return s.failPatient(ctx, run, p, StepSubmit, err, log)
	}
	s.step(ctx, run, p.ID, StepSubmit, journal.StepOK, ack.SubmissionID)

	if _, err := s.journal.RecordReceipt(ctx, p.ID, ack.SubmissionID, subject, ack.ReceiptPDF, now); err != nil {
		if errors.Is(err, journal.ErrDuplicateReceipt) {
			s.step(ctx, run, p.ID, StepReceipt, journal.StepSkipped, "receipt already recorded")
		} else {
			s.step(ctx, run, p.ID, StepReceipt, journal.StepFailed, err.Error())
			return "", fmt.Errorf("record receipt for %s: %w", p.ID, err)
		}
	} else {
		s.step(ctx, run, p.ID, StepReceipt, journal.StepOK, ack.SubmissionID)
	}

	created, err := s.journal.EnsureNote(ctx, p.ID, noteBody(clinic.Name), now)
	if err != nil {
		s.step(ctx, run, p.ID, StepNote, journal.StepFailed, err.Error())
		return "", fmt.Errorf("write journal note for %s: %w", p.ID, err)
	}
	if created {
		s.step(ctx, run, p.ID, StepNote, journal.StepOK, "")
	} else {
		s.step(ctx, run, p.ID, StepNote, journal.StepSkipped, "note already present")
	}

	if err := s.cohort.MarkTransferred(ctx, p.ID); err != nil {
		return "", fmt.Errorf("mark patient %s transferred: %w", p.ID, err)
	}

	log.Info().Str("submission_id", ack.SubmissionID).Msg("patient handed over")
	return outcomeTransferred, nil
}

func (s *Service) failPatient(ctx context.Context, run *journal.Run, p *cohort.Patient, step string, cause error, log zerolog.Logger) (string, error) {
	s.step(ctx, run, p.ID, step, journal.StepFailed, cause.Error())
	if err := s.cohort.MarkFailed(ctx, p.ID, cause.Error()); err != nil {
		return "", fmt.Errorf("mark patient %s failed: %w", p.ID, err)
	}
	if IsBusiness(cause) {
		log.Warn().Err(cause).Str("step", step).Msg("patient failed business rule")
	} else {
		log.Error().Err(cause).Str("step", step).Msg("patient failed")
	}
	return outcomeFailed, nil
}

// step records a run-log entry. A failure to log never fails the patient.
func (s *Service) step(ctx context.Context, run *journal.Run, patientID uuid.UUID, step, status, detail string) {
	if err := s.journal.RecordStep(ctx, run.ID, patientID, step, status, detail); err != nil {
		s.logger.Warn().Err(err).Str("step", step).Msg("failed to record step outcome")
	}
}

func (s *Service) abortRun(ctx context.Context, run *journal.Run) {
	run.Status = journal.RunAborted
	if err := s.journal.FinishRun(ctx, run); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close aborted run")
	}
}

func isClinicRule(err error) bool {
	return errors.Is(err, cohort.ErrNoExternalClinic) ||
		errors.Is(err, cohort.ErrMissingProviderNumber) ||
		errors.Is(err, cohort.ErrMissingPhone)
}

func messageBody(patientName, clinicName string) string {
	return fmt.Sprintf(
		"%s has reached the discharge age and is transferred to %s.\n\n"+
			"Attached are the patient's record printout, discharge documents and x-ray images. "+
			"The dental journal is continued at your clinic from the submission date.",
		patientName, clinicName)
}

func noteBody(clinicName string) string {
	return fmt.Sprintf("Patient discharged at age threshold. Record and images sent to %s via the portal.", clinicName)
}
