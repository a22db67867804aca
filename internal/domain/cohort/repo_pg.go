package cohort

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, national_id, given_name, family_name, birth_date,
	status, failure_reason, transferred_at, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.NationalID, &p.GivenName, &p.FamilyName, &p.BirthDate,
		&p.Status, &p.FailureReason, &p.TransferredAt, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) ListEligible(ctx context.Context, asOf time.Time, thresholdYears, limit int) ([]*Patient, error) {
	cutoff := asOf.AddDate(-thresholdYears, 0, 0)
	rows, err := r.pool.Query(ctx, `SELECT `+patientCols+` FROM patient
		WHERE status = $1 AND birth_date <= $2
		ORDER BY birth_date, id LIMIT $3`,
		StatusPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE national_id = $1`, nationalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *patientRepoPG) MarkTransferred(ctx context.Context, id uuid.UUID) error {
	// The status guard makes the transition idempotent across runs.
	_, err := r.pool.Exec(ctx, `UPDATE patient
		SET status = $2, failure_reason = NULL, transferred_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status <> $2`,
		id, StatusTransferred)
	return err
}

func (r *patientRepoPG) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE patient
		SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1 AND status <> $4`,
		id, StatusFailed, reason, StatusTransferred)
	return err
}

type clinicRepoPG struct{ pool *pgxpool.Pool }

func NewClinicRepoPG(pool *pgxpool.Pool) ClinicRepository { return &clinicRepoPG{pool: pool} }

func (r *clinicRepoPG) ExternalClinicFor(ctx context.Context, patientID uuid.UUID) (*ExternalClinic, error) {
	var ec ExternalClinic
	err := r.pool.QueryRow(ctx, `SELECT patient_id, provider_number, name, phone
		FROM external_clinic WHERE patient_id = $1`, patientID).
		Scan(&ec.PatientID, &ec.ProviderNumber, &ec.Name, &ec.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ec, nil
}
