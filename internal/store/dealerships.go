package store

import (
	"context"
	"database/sql"
	"time"
)

// Dealership is a rooftop that owns vehicles (table stores).
type Dealership struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	DMSDealerID string    `json:"dmsDealerId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type DealershipInput struct {
	Name        string
	Slug        string
	DMSDealerID string
}

const dealershipColumns = `id, name, slug, dms_dealer_id, created_at, updated_at`

func scanDealership(row interface{ Scan(...any) error }) (Dealership, error) {
	var d Dealership
	var dms sql.NullString
	if err := row.Scan(&d.ID, &d.Name, &d.Slug, &dms, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, classify(err)
	}
	d.DMSDealerID = dms.String
	return d, nil
}

func (s *Store) CreateDealership(ctx context.Context, in DealershipInput) (Dealership, error) {
	return scanDealership(s.DB.QueryRowContext(ctx, `
        INSERT INTO stores (name, slug, dms_dealer_id)
        VALUES ($1,$2,$3)
        RETURNING `+dealershipColumns,
		in.Name, in.Slug, nullString(in.DMSDealerID),
	))
}

func (s *Store) ListDealerships(ctx context.Context) ([]Dealership, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+dealershipColumns+` FROM stores ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Dealership{}
	for rows.Next() {
		d, err := scanDealership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDealership(ctx context.Context, id string) (Dealership, error) {
	return scanDealership(s.DB.QueryRowContext(ctx, `SELECT `+dealershipColumns+` FROM stores WHERE id=$1`, id))
}

func (s *Store) UpdateDealership(ctx context.Context, id string, in DealershipInput) (Dealership, error) {
	return scanDealership(s.DB.QueryRowContext(ctx, `
        UPDATE stores SET name=$2, slug=$3, dms_dealer_id=$4, updated_at=now()
        WHERE id=$1
        RETURNING `+dealershipColumns,
		id, in.Name, in.Slug, nullString(in.DMSDealerID),
	))
}

// DeleteDealership removes the store and, by cascade, its vehicles and image
// rows. It returns the images so their objects can be removed from storage.
func (s *Store) DeleteDealership(ctx context.Context, id string) ([]Image, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	images, err := queryImages(ctx, tx, `
        SELECT `+imageColumns+` FROM vehicle_images
        WHERE vehicle_id IN (SELECT id FROM vehicles WHERE store_id=$1)`, id)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id=$1`, id)
	if err != nil {
		return nil, classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return images, nil
}
