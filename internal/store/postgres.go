package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrSuperseded means the image was reset while a worker held it, so the
	// worker's result is stale.
	ErrSuperseded = errors.New("image changed while processing")
)

type Store struct{ DB *sql.DB }

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		`CREATE TABLE IF NOT EXISTS stores (
            id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            name          TEXT NOT NULL,
            slug          TEXT NOT NULL,
            dms_dealer_id TEXT,
            created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_stores_slug ON stores(slug);`,
		`CREATE TABLE IF NOT EXISTS vehicles (
            id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            store_id      UUID NOT NULL REFERENCES stores(id) ON DELETE CASCADE,
            vin           TEXT NOT NULL,
            stock_number  TEXT NOT NULL,
            year          SMALLINT,
            make          TEXT,
            model         TEXT,
            trim_level    TEXT,
            created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_vehicles_store_stock ON vehicles(store_id, stock_number);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_vehicles_store_vin ON vehicles(store_id, vin);`,
		`CREATE TABLE IF NOT EXISTS vehicle_images (
            id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            vehicle_id        UUID NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
            original_key      TEXT NOT NULL,
            original_url      TEXT NOT NULL,
            content_type      TEXT NOT NULL DEFAULT 'image/jpeg',
            optimized_key     TEXT,
            optimized_url     TEXT,
            is_optimized      BOOLEAN NOT NULL DEFAULT false,
            is_key            BOOLEAN NOT NULL DEFAULT false,
            category          TEXT NOT NULL DEFAULT 'other',
            position          INTEGER NOT NULL DEFAULT 0,
            processing_status TEXT NOT NULL DEFAULT 'pending',
            processing_error  TEXT,
            processing_started_at TIMESTAMPTZ,
            attempts          INTEGER NOT NULL DEFAULT 0,
            created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_vimages_vehicle ON vehicle_images(vehicle_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_vimages_optimized ON vehicle_images(vehicle_id) WHERE is_optimized;`,
		`CREATE INDEX IF NOT EXISTS idx_vimages_status ON vehicle_images(processing_status, attempts);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return errors.Join(ErrConflict, err)
		case "23503", "22P02":
			// foreign key or malformed uuid: the referenced row does not exist
			return errors.Join(ErrNotFound, err)
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
