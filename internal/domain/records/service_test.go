package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	docs    []*Document
	content map[uuid.UUID][]byte
	created int
}

func (m *mockRepo) LatestOfType(_ context.Context, patientID uuid.UUID, docType string) (*Document, error) {
	var latest *Document
	for _, d := range m.docs {
		if d.PatientID != patientID || d.Type != docType || !d.Active {
			continue
		}
		if latest == nil || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
		}
	}
	return latest, nil
}

func (m *mockRepo) ListOfType(_ context.Context, patientID uuid.UUID, docType string) ([]*Document, error) {
	var out []*Document
	for _, d := range m.docs {
		if d.PatientID == patientID && d.Type == docType && d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockRepo) ExistsSince(_ context.Context, patientID uuid.UUID, docType string, since time.Time) (bool, error) {
	for _, d := range m.docs {
		if d.PatientID == patientID && d.Type == docType && d.Active && !d.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) Content(_ context.Context, id uuid.UUID) ([]byte, error) {
	data, ok := m.content[id]
	if !ok {
		return nil, errors.New("no content")
	}
	return data, nil
}

func (m *mockRepo) Create(_ context.Context, doc *Document, content []byte) (*Document, error) {
	created := *doc
	created.ID = uuid.New()
	created.Active = true
	created.CreatedAt = time.Now()
	m.docs = append(m.docs, &created)
	if m.content == nil {
		m.content = make(map[uuid.UUID][]byte)
	}
	m.content[created.ID] = content
	m.created++
	return &created, nil
}

type mockPrinter struct {
	pdf []byte
	err error
}

func (m *mockPrinter) PrintRecord(_ context.Context, _ uuid.UUID) ([]byte, error) {
	return m.pdf, m.err
}

func (m *mockRepo) add(patientID uuid.UUID, docType, filename string, createdAt time.Time, content []byte) *Document {
	d := &Document{
		ID:        uuid.New(),
		PatientID: patientID,
		Type:      docType,
		Filename:  filename,
		CreatedAt: createdAt,
		Active:    true,
	}
	m.docs = append(m.docs, d)
	if m.content == nil {
		m.content = make(map[uuid.UUID][]byte)
	}
	m.content[d.ID] = content
	return d
}

func TestEnsureRecordDocumentCreatesWhenMissing(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo, &mockPrinter{pdf: []byte("%PDF-1.4")}, 30)
	patientID := uuid.New()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	doc, err := svc.EnsureRecordDocument(context.Background(), patientID, now)
	if err != nil {
		t.Fatalf("EnsureRecordDocument: %v", err)
	}
	if repo.created != 1 {
		t.Fatalf("created = %d, want 1", repo.created)
	}
	if doc.Filename != "record_2026-08-30.pdf" {
		t.Fatalf("Filename = %q", doc.Filename)
	}
}

func TestEnsureRecordDocumentSkipsRecent(t *testing.T) {
	repo := &mockRepo{}
	patientID := uuid.New()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	existing := repo.add(patientID, TypeRecordPrintout, "record_2026-08-15.pdf",
		now.AddDate(0, 0, -15), []byte("%PDF-1.4"))

	svc := NewService(repo, &mockPrinter{err: errors.New("should not render")}, 30)
	doc, err := svc.EnsureRecordDocument(context.Background(), patientID, now)
	if err != nil {
		t.Fatalf("EnsureRecordDocument: %v", err)
	}
	if repo.created != 0 {
		t.Fatalf("created = %d, want 0", repo.created)
	}
	if doc.ID != existing.ID {
		t.Fatalf("returned %s, want existing %s", doc.ID, existing.ID)
	}
}

func TestEnsureRecordDocumentRecreatesOutsideWindow(t *testing.T) {
	repo := &mockRepo{}
	patientID := uuid.New()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	repo.add(patientID, TypeRecordPrintout, "record_2026-06-01.pdf",
		now.AddDate(0, 0, -90), []byte("%PDF-1.4"))

	svc := NewService(repo, &mockPrinter{pdf: []byte("%PDF-1.4")}, 30)
	if _, err := svc.EnsureRecordDocument(context.Background(), patientID, now); err != nil {
		t.Fatalf("EnsureRecordDocument: %v", err)
	}
	if repo.created != 1 {
		t.Fatalf("created = %d, want 1", repo.created)
	}
}

func TestEnsureRecordDocumentEmptyPrintout(t *testing.T) {
	svc := NewService(&mockRepo{}, &mockPrinter{pdf: nil}, 30)
	_, err := svc.EnsureRecordDocument(context.Background(), uuid.New(), time.Now())
	if !errors.Is(err, ErrEmptyPrintout) {
		t.Fatalf("expected ErrEmptyPrintout, got %v", err)
	}
}

func TestCollectForSubmission(t *testing.T) {
	repo := &mockRepo{}
	patientID := uuid.New()
	now := time.Now()
	repo.add(patientID, TypeRecordPrintout, "record_old.pdf", now.AddDate(0, 0, -40), []byte("old"))
	repo.add(patientID, TypeRecordPrintout, "record_new.pdf", now.AddDate(0, 0, -1), []byte("new"))
	repo.add(patientID, TypeDischarge, "consent.pdf", now.AddDate(0, -1, 0), []byte("consent"))

	svc := NewService(repo, &mockPrinter{}, 30)
	files, err := svc.CollectForSubmission(context.Background(), patientID, "Jens Hansen")
	if err != nil {
		t.Fatalf("CollectForSubmission: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if files[0].Name != "Jens Hansen - record.pdf" {
		t.Fatalf("printout name = %q", files[0].Name)
	}
	if string(files[0].Data) != "new" {
		t.Fatalf("printout content = %q, want latest", files[0].Data)
	}
	if files[1].Name != "consent.pdf" || files[1].ContentType != "application/pdf" {
		t.Fatalf("discharge file = %+v", files[1])
	}
}

func TestCollectForSubmissionEmpty(t *testing.T) {
	svc := NewService(&mockRepo{}, &mockPrinter{}, 30)
	_, err := svc.CollectForSubmission(context.Background(), uuid.New(), "Jens Hansen")
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("expected ErrNoDocuments, got %v", err)
	}
}
