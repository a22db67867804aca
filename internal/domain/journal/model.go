// Package journal owns the durable record of what this service did: portal
// receipts, administrative notes written to the patient journal, and the
// per-run batch log.
package journal

import (
	"time"

	"github.com/google/uuid"
)

// Receipt is the portal's proof that a submission was delivered. One per
// successful transfer, immutable once written.
type Receipt struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	Subject      string    `db:"subject" json:"subject"`
	FileName     string    `db:"file_name" json:"file_name"`
	SHA256       string    `db:"sha256" json:"sha256"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// AdministrativeNote marks in the patient journal that the handover was
// performed. Written at most once per patient within the recheck window.
type AdministrativeNote struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Run statuses.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunAborted  = "aborted"
)

// Run is one execution of the batch.
type Run struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Status      string     `db:"status" json:"status"`
	DryRun      bool       `db:"dry_run" json:"dry_run"`
	Eligible    int        `db:"eligible" json:"eligible"`
	Transferred int        `db:"transferred" json:"transferred"`
	Failed      int        `db:"failed" json:"failed"`
	Skipped     int        `db:"skipped" json:"skipped"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	FinishedAt  *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Step outcome statuses.
const (
	StepOK      = "ok"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// StepOutcome records how one pipeline stage went for one patient.
type StepOutcome struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RunID     uuid.UUID `db:"run_id" json:"run_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Step      string    `db:"step" json:"step"`
	Status    string    `db:"status" json:"status"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
