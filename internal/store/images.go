package store

import (
	"context"
	"database/sql"
	"time"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Categories an uploaded photo can be filed under.
var Categories = []string{"exterior", "interior", "engine", "wheels", "damage", "documents", "other"}

func ValidCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}

type Image struct {
	ID           string    `json:"id"`
	VehicleID    string    `json:"vehicleId"`
	OriginalKey  string    `json:"-"`
	OriginalURL  string    `json:"originalUrl"`
	ContentType  string    `json:"contentType"`
	OptimizedKey *string   `json:"-"`
	OptimizedURL *string   `json:"optimizedUrl"`
	IsOptimized  bool      `json:"isOptimized"`
	IsKey        bool      `json:"isKey"`
	Category     string    `json:"category"`
	Position     int       `json:"position"`
	Status       string    `json:"processingStatus"`
	Error        *string   `json:"processingError,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type ImageInput struct {
	VehicleID   string
	OriginalKey string
	OriginalURL string
	ContentType string
	IsKey       bool
	Category    string
}

// ImagePatch holds optional metadata changes; nil fields are left alone.
type ImagePatch struct {
	Category *string
	IsKey    *bool
	Position *int
}

const imageColumns = `id, vehicle_id, original_key, original_url, content_type, optimized_key, optimized_url,
        is_optimized, is_key, category, position, processing_status, processing_error, attempts, created_at, updated_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanImage(row interface{ Scan(...any) error }) (Image, error) {
	var img Image
	var optKey, optURL, procErr sql.NullString
	err := row.Scan(&img.ID, &img.VehicleID, &img.OriginalKey, &img.OriginalURL, &img.ContentType, &optKey, &optURL,
		&img.IsOptimized, &img.IsKey, &img.Category, &img.Position, &img.Status, &procErr, &img.Attempts,
		&img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		return img, classify(err)
	}
	img.OptimizedKey = strPtr(optKey)
	img.OptimizedURL = strPtr(optURL)
	img.Error = strPtr(procErr)
	return img, nil
}

func queryImages(ctx context.Context, q querier, query string, args ...any) ([]Image, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// CreateImage appends a pending image after the vehicle's last position.
func (s *Store) CreateImage(ctx context.Context, in ImageInput) (Image, error) {
	if in.Category == "" {
		in.Category = "other"
	}
	if in.ContentType == "" {
		in.ContentType = "image/jpeg"
	}
	return scanImage(s.DB.QueryRowContext(ctx, `
        INSERT INTO vehicle_images (vehicle_id, original_key, original_url, content_type, is_key, category, position)
        VALUES ($1,$2,$3,$4,$5,$6,
            COALESCE((SELECT MAX(position)+1 FROM vehicle_images WHERE vehicle_id=$1), 0))
        RETURNING `+imageColumns,
		in.VehicleID, in.OriginalKey, in.OriginalURL, in.ContentType, in.IsKey, in.Category,
	))
}

func (s *Store) GetImage(ctx context.Context, id string) (Image, error) {
	return scanImage(s.DB.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM vehicle_images WHERE id=$1`, id))
}

func (s *Store) ListImages(ctx context.Context, vehicleID string) ([]Image, error) {
	return queryImages(ctx, s.DB, `
        SELECT `+imageColumns+` FROM vehicle_images
        WHERE vehicle_id=$1
        ORDER BY position, created_at`, vehicleID)
}

// UpdateImage applies a patch. Flipping is_key sends the image back to
// pending so it is reprocessed with or without background replacement.
func (s *Store) UpdateImage(ctx context.Context, id string, p ImagePatch) (Image, error) {
	var category sql.NullString
	if p.Category != nil {
		category = sql.NullString{String: *p.Category, Valid: true}
	}
	var isKey sql.NullBool
	if p.IsKey != nil {
		isKey = sql.NullBool{Bool: *p.IsKey, Valid: true}
	}
	var position sql.NullInt64
	if p.Position != nil {
		position = sql.NullInt64{Int64: int64(*p.Position), Valid: true}
	}
	return scanImage(s.DB.QueryRowContext(ctx, `
        UPDATE vehicle_images SET
            category = COALESCE($2::text, category),
            is_key = COALESCE($3::boolean, is_key),
            position = COALESCE($4::integer, position),
            processing_status = CASE WHEN $3::boolean IS NOT NULL AND $3::boolean <> is_key
                THEN 'pending' ELSE processing_status END,
            attempts = CASE WHEN $3::boolean IS NOT NULL AND $3::boolean <> is_key
                THEN 0 ELSE attempts END,
            updated_at = now()
        WHERE id=$1
        RETURNING `+imageColumns,
		id, category, isKey, position,
	))
}

// RequeueImage puts an image back into the pending state with a fresh
// attempt budget.
func (s *Store) RequeueImage(ctx context.Context, id string) (Image, error) {
	return scanImage(s.DB.QueryRowContext(ctx, `
        UPDATE vehicle_images SET processing_status='pending', attempts=0, processing_error=NULL
        WHERE id=$1
        RETURNING `+imageColumns, id))
}

func (s *Store) DeleteImage(ctx context.Context, id string) (Image, error) {
	return scanImage(s.DB.QueryRowContext(ctx, `DELETE FROM vehicle_images WHERE id=$1 RETURNING `+imageColumns, id))
}

// MarkProcessing records the start of an attempt.
func (s *Store) MarkProcessing(ctx context.Context, id string) (Image, error) {
	return scanImage(s.DB.QueryRowContext(ctx, `
        UPDATE vehicle_images
        SET processing_status='processing', processing_started_at=now(), attempts=attempts+1
        WHERE id=$1
        RETURNING `+imageColumns, id))
}

// MarkOptimized stores the processed object, bumps updated_at on the image
// and its vehicle, and returns the key of the object it replaced, if any.
// It returns ErrSuperseded when the image left the processing state in the
// meantime, e.g. because its key flag was flipped.
func (s *Store) MarkOptimized(ctx context.Context, id, key, url string) (previousKey string, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var prev sql.NullString
	var vehicleID, status string
	err = tx.QueryRowContext(ctx, `
        SELECT optimized_key, vehicle_id, processing_status FROM vehicle_images WHERE id=$1 FOR UPDATE`, id).
		Scan(&prev, &vehicleID, &status)
	if err != nil {
		return "", classify(err)
	}
	if status != StatusProcessing {
		return "", ErrSuperseded
	}
	if _, err = tx.ExecContext(ctx, `
        UPDATE vehicle_images SET optimized_key=$2, optimized_url=$3, is_optimized=true,
            processing_status='done', processing_error=NULL, updated_at=now()
        WHERE id=$1`, id, key, url); err != nil {
		return "", err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE vehicles SET updated_at=now() WHERE id=$1`, vehicleID); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}
	if prev.Valid && prev.String != key {
		return prev.String, nil
	}
	return "", nil
}

// ReleaseImage hands an interrupted attempt back: the image returns to
// pending and the attempt is not counted.
func (s *Store) ReleaseImage(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `
        UPDATE vehicle_images SET processing_status='pending', attempts=GREATEST(attempts-1, 0)
        WHERE id=$1 AND processing_status='processing'`, id)
	return classify(err)
}

func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE vehicle_images SET processing_status='failed', processing_error=$2
        WHERE id=$1`, id, reason)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProcessable returns pending images, failed images still under the
// attempt cap, and images stuck in processing for longer than staleAfter.
func (s *Store) ListProcessable(ctx context.Context, maxAttempts int, staleAfter time.Duration, limit int) ([]Image, error) {
	if limit <= 0 {
		limit = 100
	}
	return queryImages(ctx, s.DB, `
        SELECT `+imageColumns+` FROM vehicle_images
        WHERE processing_status='pending'
           OR (processing_status='failed' AND attempts < $1)
           OR (processing_status='processing' AND processing_started_at < now() - make_interval(secs => $2))
        ORDER BY is_key DESC, created_at
        LIMIT $3`, maxAttempts, staleAfter.Seconds(), limit)
}

// RetryExhausted gives failed images that used up their attempts a fresh
// budget. It returns how many were reset.
func (s *Store) RetryExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
        UPDATE vehicle_images SET processing_status='pending', attempts=0
        WHERE processing_status='failed' AND attempts >= $1`, maxAttempts)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
