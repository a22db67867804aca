package imaging

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	connectAttempts  = 3
	connectBaseDelay = 2 * time.Second
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

// withConnRetry retries fn on connection-level failures with exponential
// backoff. The imaging database sits behind a flaky site-to-site link;
// query-level errors are never retried.
func withConnRetry(ctx context.Context, fn func() error) error {
	delay := connectBaseDelay
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}

func (r *repoPG) FindPerson(ctx context.Context, nationalID string) (*Person, error) {
	var p Person
	err := withConnRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT person_id, external_id, first_name,
			COALESCE(second_name, ''), last_name
			FROM person WHERE external_id = $1`, nationalID).
			Scan(&p.ID, &p.ExternalID, &p.FirstName, &p.SecondName, &p.LastName)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) ListImageIDs(ctx context.Context, personID int64) ([]int64, error) {
	var ids []int64
	err := withConnRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, `SELECT image_id FROM image
			WHERE person_id = $1 AND status = 'active' ORDER BY capture_date, image_id`, personID)
		if err != nil {
			return err
		}
		defer rows.Close()

		ids = ids[:0]
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repoPG) GetImages(ctx context.Context, imageIDs []int64) ([]*Image, error) {
	if len(imageIDs) == 0 {
		return nil, nil
	}
	var images []*Image
	err := withConnRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx, `SELECT image_id, person_id, capture_date,
			content_type, data
			FROM image WHERE image_id = ANY($1) ORDER BY capture_date, image_id`, imageIDs)
		if err != nil {
			return err
		}
		defer rows.Close()

		images = images[:0]
		for rows.Next() {
			var img Image
			if err := rows.Scan(&img.ID, &img.PersonID, &img.CaptureDate,
				&img.ContentType, &img.Data); err != nil {
				return err
			}
			images = append(images, &img)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return images, nil
}
