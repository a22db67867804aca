package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type receiptRepoPG struct{ pool *pgxpool.Pool }

func NewReceiptRepoPG(pool *pgxpool.Pool) ReceiptRepository { return &receiptRepoPG{pool: pool} }

const receiptCols = `id, patient_id, submission_id, subject, file_name, sha256, created_at`

func scanReceipt(row pgx.Row) (*Receipt, error) {
	var r Receipt
	err := row.Scan(&r.ID, &r.PatientID, &r.SubmissionID, &r.Subject, &r.FileName,
		&r.SHA256, &r.CreatedAt)
	return &r, err
}

func (r *receiptRepoPG) Create(ctx context.Context, rec *Receipt, pdf []byte) (*Receipt, error) {
	return scanReceipt(r.pool.QueryRow(ctx, `INSERT INTO transfer_receipt
		(id, patient_id, submission_id, subject, file_name, sha256, pdf, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING `+receiptCols,
		uuid.New(), rec.PatientID, rec.SubmissionID, rec.Subject, rec.FileName, rec.SHA256, pdf))
}

func (r *receiptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	rec, err := scanReceipt(r.pool.QueryRow(ctx,
		`SELECT `+receiptCols+` FROM transfer_receipt WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *receiptRepoPG) List(ctx context.Context, patientID *uuid.UUID, limit, offset int) ([]*Receipt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_receipt
		WHERE $1::uuid IS NULL OR patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+receiptCols+` FROM transfer_receipt
		WHERE $1::uuid IS NULL OR patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *receiptRepoPG) ExistsSince(ctx context.Context, patientID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM transfer_receipt WHERE patient_id = $1 AND created_at >= $2)`,
		patientID, since).Scan(&exists)
	return exists, err
}

type noteRepoPG struct{ pool *pgxpool.Pool }

func NewNoteRepoPG(pool *pgxpool.Pool) NoteRepository { return &noteRepoPG{pool: pool} }

func (r *noteRepoPG) Create(ctx context.Context, n *AdministrativeNote) (*AdministrativeNote, error) {
	var out AdministrativeNote
	err := r.pool.QueryRow(ctx, `INSERT INTO administrative_note
		(id, patient_id, body, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, patient_id, body, created_at`,
		uuid.New(), n.PatientID, n.Body).
		Scan(&out.ID, &out.PatientID, &out.Body, &out.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *noteRepoPG) ExistsSince(ctx context.Context, patientID uuid.UUID, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM administrative_note WHERE patient_id = $1 AND created_at >= $2)`,
		patientID, since).Scan(&exists)
	return exists, err
}

type runRepoPG struct{ pool *pgxpool.Pool }

func NewRunRepoPG(pool *pgxpool.Pool) RunRepository { return &runRepoPG{pool: pool} }

const runCols = `id, status, dry_run, eligible, transferred, failed, skipped, started_at, finished_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.Status, &run.DryRun, &run.Eligible, &run.Transferred,
		&run.Failed, &run.Skipped, &run.StartedAt, &run.FinishedAt)
	return &run, err
}

func (r *runRepoPG) CreateRun(ctx context.Context, dryRun bool) (*Run, error) {
	return scanRun(r.pool.QueryRow(ctx, `INSERT INTO transfer_run
		(id, status, dry_run, started_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING `+runCols,
		uuid.New(), RunRunning, dryRun))
}

func (r *runRepoPG) FinishRun(ctx context.Context, run *Run) error {
	_, err := r.pool.Exec(ctx, `UPDATE transfer_run
		SET status = $2, eligible = $3, transferred = $4, failed = $5, skipped = $6,
		    finished_at = NOW()
		WHERE id = $1`,
		run.ID, run.Status, run.Eligible, run.Transferred, run.Failed, run.Skipped)
	return err
}

func (r *runRepoPG) AddStep(ctx context.Context, s *StepOutcome) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO transfer_step
		(id, run_id, patient_id, step, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		uuid.New(), s.RunID, s.PatientID, s.Step, s.Status, s.Detail)
	return err
}

func (r *runRepoPG) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runCols+` FROM transfer_run WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepoPG) ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transfer_run`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+runCols+` FROM transfer_run
		ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, run)
	}
	return items, total, rows.Err()
}

func (r *runRepoPG) ListSteps(ctx context.Context, runID uuid.UUID) ([]*StepOutcome, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, run_id, patient_id, step, status, detail, created_at
		FROM transfer_step WHERE run_id = $1 ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*StepOutcome
	for rows.Next() {
		var s StepOutcome
		if err := rows.Scan(&s.ID, &s.RunID, &s.PatientID, &s.Step, &s.Status,
			&s.Detail, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}
