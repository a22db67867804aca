package cohort

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient statuses. A patient enters the cohort as pending and leaves it as
// transferred or failed; transferred is terminal.
const (
	StatusPending     = "pending"
	StatusTransferred = "transferred"
	StatusFailed      = "failed"
)

// Patient maps to the patient table in the clinical store. The record is
// owned by the clinical system; this process only moves its status forward
// and never edits demographics.
type Patient struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	NationalID    string     `db:"national_id" json:"national_id"`
	GivenName     string     `db:"given_name" json:"given_name"`
	FamilyName    string     `db:"family_name" json:"family_name"`
	BirthDate     time.Time  `db:"birth_date" json:"birth_date"`
	Status        string     `db:"status" json:"status"`
	FailureReason *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	TransferredAt *time.Time `db:"transferred_at" json:"transferred_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	return strings.TrimSpace(p.GivenName + " " + p.FamilyName)
}

// AgeAt returns the patient's age in whole years at the given date.
func (p *Patient) AgeAt(asOf time.Time) int {
	years := asOf.Year() - p.BirthDate.Year()
	anniversary := p.BirthDate.AddDate(years, 0, 0)
	if anniversary.After(asOf) {
		years--
	}
	return years
}

// Eligible reports whether the patient has reached the discharge age and is
// still pending.
func (p *Patient) Eligible(asOf time.Time, thresholdYears int) bool {
	return p.Status == StatusPending && p.AgeAt(asOf) >= thresholdYears
}

// ExternalClinic is the receiving private clinic registered on the patient
// in the clinical store.
type ExternalClinic struct {
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderNumber string    `db:"provider_number" json:"provider_number"`
	Name           string    `db:"name" json:"name"`
	Phone          string    `db:"phone" json:"phone"`
}
