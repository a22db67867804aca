package records

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const documentCols = `id, patient_id, doc_type, description, filename,
	source_path, created_at, active`

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.PatientID, &d.Type, &d.Description, &d.Filename,
		&d.SourcePath, &d.CreatedAt, &d.Active)
	return &d, err
}

func (r *repoPG) LatestOfType(ctx context.Context, patientID uuid.UUID, docType string) (*Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx, `SELECT `+documentCols+` FROM document
		WHERE patient_id = $1 AND doc_type = $2 AND active
		ORDER BY created_at DESC LIMIT 1`,
		patientID, docType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *repoPG) ListOfType(ctx context.Context, patientID uuid.UUID, docType string) ([]*Document, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+documentCols+` FROM document
		WHERE patient_id = $1 AND doc_type = $2 AND active
		ORDER BY created_at DESC`,
		patientID, docType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *repoPG) ExistsSince(ctx context.Context, patientID uuid.UUID, docType string, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM document
		WHERE patient_id = $1 AND doc_type = $2 AND active AND created_at >= $3)`,
		patientID, docType, since).Scan(&exists)
	return exists, err
}

func (r *repoPG) Content(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var content []byte
	err := r.pool.QueryRow(ctx, `SELECT content FROM document WHERE id = $1`, id).Scan(&content)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (r *repoPG) Create(ctx context.Context, doc *Document, content []byte) (*Document, error) {
	return scanDocument(r.pool.QueryRow(ctx, `INSERT INTO document
		(id, patient_id, doc_type, description, filename, source_path, content, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
		RETURNING `+documentCols,
		uuid.New(), doc.PatientID, doc.Type, doc.Description, doc.Filename, doc.SourcePath, content))
}

// printerPG asks the clinical database to render a patient's record printout.
type printerPG struct{ pool *pgxpool.Pool }

func NewPrinterPG(pool *pgxpool.Pool) Printer { return &printerPG{pool: pool} }

func (p *printerPG) PrintRecord(ctx context.Context, patientID uuid.UUID) ([]byte, error) {
	var pdf []byte
	err := p.pool.QueryRow(ctx, `SELECT render_record_printout($1)`, patientID).Scan(&pdf)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}
