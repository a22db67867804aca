// Package records manages the patient documents attached to a handover
// submission: the record printout generated in the clinical system and any
// documents filed under the discharge category.
package records

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Document types as stored in the clinical document table.
const (
	TypeRecordPrintout = "record_printout"
	TypeDischarge      = "discharge"
)

type Document struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	Type        string    `db:"doc_type" json:"type"`
	Description string    `db:"description" json:"description"`
	Filename    string    `db:"filename" json:"filename"`
	SourcePath  string    `db:"source_path" json:"source_path"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Active      bool      `db:"active" json:"active"`
}

// SubmissionName is the filename the document carries in the portal
// submission. The record printout gets the patient's name prefixed so the
// receiving clinic can tell whose record it is.
func (d *Document) SubmissionName(patientName string) string {
	if d.Type != TypeRecordPrintout || patientName == "" {
		return d.Filename
	}
	ext := filepath.Ext(d.Filename)
	return fmt.Sprintf("%s - record%s", patientName, ext)
}
