package store

import (
	"context"
	"database/sql"
	"time"
)

type Vehicle struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"storeId"`
	VIN         string    `json:"vin"`
	StockNumber string    `json:"stockNumber"`
	Year        int       `json:"year,omitempty"`
	Make        string    `json:"make,omitempty"`
	Model       string    `json:"model,omitempty"`
	Trim        string    `json:"trim,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Images      []Image   `json:"images,omitempty"`
}

type VehicleInput struct {
	StoreID     string
	VIN         string
	StockNumber string
	Year        int
	Make        string
	Model       string
	Trim        string
}

const vehicleColumns = `id, store_id, vin, stock_number, year, make, model, trim_level, created_at, updated_at`

func scanVehicle(row interface{ Scan(...any) error }) (Vehicle, error) {
	var v Vehicle
	var year sql.NullInt64
	var mk, model, trim sql.NullString
	err := row.Scan(&v.ID, &v.StoreID, &v.VIN, &v.StockNumber, &year, &mk, &model, &trim, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return v, classify(err)
	}
	v.Year = int(year.Int64)
	v.Make, v.Model, v.Trim = mk.String, model.String, trim.String
	return v, nil
}

func (s *Store) CreateVehicle(ctx context.Context, in VehicleInput) (Vehicle, error) {
	return scanVehicle(s.DB.QueryRowContext(ctx, `
        INSERT INTO vehicles (store_id, vin, stock_number, year, make, model, trim_level)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING `+vehicleColumns,
		in.StoreID, in.VIN, in.StockNumber, nullInt(in.Year), nullString(in.Make), nullString(in.Model), nullString(in.Trim),
	))
}

func (s *Store) ListVehicles(ctx context.Context, storeID string) ([]Vehicle, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT `+vehicleColumns+` FROM vehicles
        WHERE store_id=$1
        ORDER BY created_at DESC`, storeID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVehicle returns the vehicle with its images in display order.
func (s *Store) GetVehicle(ctx context.Context, id string) (Vehicle, error) {
	v, err := scanVehicle(s.DB.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id=$1`, id))
	if err != nil {
		return v, err
	}
	v.Images, err = s.ListImages(ctx, id)
	return v, err
}

func (s *Store) UpdateVehicle(ctx context.Context, id string, in VehicleInput) (Vehicle, error) {
	return scanVehicle(s.DB.QueryRowContext(ctx, `
        UPDATE vehicles SET vin=$2, stock_number=$3, year=$4, make=$5, model=$6, trim_level=$7, updated_at=now()
        WHERE id=$1
        RETURNING `+vehicleColumns,
		id, in.VIN, in.StockNumber, nullInt(in.Year), nullString(in.Make), nullString(in.Model), nullString(in.Trim),
	))
}

// DeleteVehicle removes the vehicle and returns its images so the caller can
// clean up stored objects.
func (s *Store) DeleteVehicle(ctx context.Context, id string) ([]Image, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	images, err := queryImages(ctx, tx, `SELECT `+imageColumns+` FROM vehicle_images WHERE vehicle_id=$1`, id)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM vehicles WHERE id=$1`, id)
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
