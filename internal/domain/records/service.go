package records

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNoDocuments   = errors.New("records: no documents to submit")
	ErrEmptyPrintout = errors.New("records: rendered printout is empty")
)

// File is a document payload ready to attach to a submission.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Service struct {
	repo              Repository
	printer           Printer
	recheckWindowDays int
}

func NewService(repo Repository, printer Printer, recheckWindowDays int) *Service {
	return &Service{repo: repo, printer: printer, recheckWindowDays: recheckWindowDays}
}

// EnsureRecordDocument makes sure a record printout created within the
// recheck window exists for the patient, rendering and filing one when it
// does not. Returns the document that satisfies the check.
func (s *Service) EnsureRecordDocument(ctx context.Context, patientID uuid.UUID, now time.Time) (*Document, error) {
	since := now.AddDate(0, 0, -s.recheckWindowDays)
	exists, err := s.repo.ExistsSince(ctx, patientID, TypeRecordPrintout, since)
	if err != nil {
		return nil, fmt.Errorf("check for recent record printout: %w", err)
	}
	if exists {
		return s.repo.LatestOfType(ctx, patientID, TypeRecordPrintout)
	}

	pdf, err := s.printer.PrintRecord(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("render record printout: %w", err)
	}
	if len(pdf) == 0 {
		return nil, ErrEmptyPrintout
	}

	doc := &Document{
		PatientID:   patientID,
		Type:        TypeRecordPrintout,
		Description: "Record printout",
		Filename:    fmt.Sprintf("record_%s.pdf", now.Format("2006-01-02")),
	}
	created, err := s.repo.Create(ctx, doc, pdf)
	if err != nil {
		return nil, fmt.Errorf("file record printout: %w", err)
	}
	return created, nil
}

// CollectForSubmission gathers the latest record printout plus every active
// discharge document, with payloads, named for the receiving clinic. An
// empty set is a rule violation reported through ErrNoDocuments.
func (s *Service) CollectForSubmission(ctx context.Context, patientID uuid.UUID, patientName string) ([]File, error) {
	var files []File

	printout, err := s.repo.LatestOfType(ctx, patientID, TypeRecordPrintout)
	if err != nil {
		return nil, fmt.Errorf("load record printout: %w", err)
	}
	if printout != nil {
		f, err := s.load(ctx, printout, patientName)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	discharge, err := s.repo.ListOfType(ctx, patientID, TypeDischarge)
	if err != nil {
		return nil, fmt.Errorf("load discharge documents: %w", err)
	}
	for _, doc := range discharge {
		f, err := s.load(ctx, doc, patientName)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, ErrNoDocuments
	}
	return files, nil
}

func (s *Service) load(ctx context.Context, doc *Document, patientName string) (File, error) {
	data, err := s.repo.Content(ctx, doc.ID)
	if err != nil {
		return File{}, fmt.Errorf("load content of document %s: %w", doc.ID, err)
	}
	name := doc.SubmissionName(patientName)
	return File{Name: name, ContentType: contentTypeFor(name), Data: data}, nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
