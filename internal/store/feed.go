package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/yourorg/inventory-api/internal/feed"
)

// ListFeedVehicles returns every vehicle that has at least one optimized
// image, oldest first, with its optimized images in display order.
func (s *Store) ListFeedVehicles(ctx context.Context) ([]feed.Vehicle, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT v.id, v.vin, v.stock_number, v.updated_at, i.optimized_url, i.updated_at
        FROM vehicles v
        JOIN vehicle_images i ON i.vehicle_id = v.id AND i.is_optimized
        ORDER BY v.created_at, v.id, i.position, i.created_at`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := []feed.Vehicle{}
	lastID := ""
	for rows.Next() {
		var (
			id, vin, stock     string
			vUpdated, iUpdated time.Time
			optURL             sql.NullString
		)
		if err := rows.Scan(&id, &vin, &stock, &vUpdated, &optURL, &iUpdated); err != nil {
			return nil, err
		}
		if id != lastID {
			out = append(out, feed.Vehicle{VIN: vin, StockNumber: stock, UpdatedAt: vUpdated})
			lastID = id
		}
		cur := &out[len(out)-1]
		cur.Images = append(cur.Images, feed.Image{OptimizedURL: strPtr(optURL), UpdatedAt: iUpdated})
	}
	return out, rows.Err()
}
