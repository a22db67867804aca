package imaging

import (
	"fmt"
	"strings"
	"time"
)

// Person is the patient's identity in the imaging database, which keys
// people independently of the clinical store.
type Person struct {
	ID         int64  `db:"person_id" json:"person_id"`
	ExternalID string `db:"external_id" json:"external_id"` // national ID
	FirstName  string `db:"first_name" json:"first_name"`
	SecondName string `db:"second_name" json:"second_name"`
	LastName   string `db:"last_name" json:"last_name"`
}

// FullName joins the non-empty name parts.
func (p *Person) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.SecondName, p.LastName} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Image is one x-ray exposure stored in the imaging database.
type Image struct {
	ID          int64     `db:"image_id" json:"image_id"`
	PersonID    int64     `db:"person_id" json:"person_id"`
	CaptureDate time.Time `db:"capture_date" json:"capture_date"`
	ContentType string    `db:"content_type" json:"content_type"`
	Data        []byte    `db:"data" json:"-"`
}

// Filename builds a stable name for the image inside the bundle.
func (img *Image) Filename() string {
	ext := ".png"
	switch img.ContentType {
	case "image/jpeg":
		ext = ".jpg"
	case "application/dicom", "image/dicom":
		ext = ".dcm"
	}
	return fmt.Sprintf("%s_%d%s", img.CaptureDate.Format("2006-01-02"), img.ID, ext)
}

// ArtifactSet is the outcome of fetching a patient's images. A set with
// Count zero and no bundle is a valid outcome: the patient simply has no
// imagery to hand over.
type ArtifactSet struct {
	PersonName string
	Count      int
	BundleName string
	BundlePath string
}

// Empty reports whether no artifacts were found for the patient.
func (a *ArtifactSet) Empty() bool {
	return a == nil || a.Count == 0
}
