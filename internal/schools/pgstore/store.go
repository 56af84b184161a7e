// Package pgstore stores schools and states in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/refimport/internal/schools"
)

// States seeded by EnsureSchema.
var States = []string{
	"Johor", "Kedah", "Kelantan", "Melaka", "Negeri Sembilan", "Pahang",
	"Perak", "Perlis", "Pulau Pinang", "Sabah", "Sarawak", "Selangor",
	"Terengganu", "W.P. Kuala Lumpur", "W.P. Labuan", "W.P. Putrajaya",
}

const schema = `
CREATE TABLE IF NOT EXISTS states (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS schools (
	id         UUID PRIMARY KEY,
	code       TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	level      TEXT NOT NULL,
	category   TEXT NOT NULL,
	state_id   BIGINT NOT NULL REFERENCES states (id),
	ppd        TEXT,
	address    TEXT,
	city       TEXT,
	postcode   TEXT,
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

const upsertSchool = `
INSERT INTO schools (id, code, name, level, category, state_id, ppd, address, city, postcode, latitude, longitude)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (code) DO UPDATE SET
	name       = EXCLUDED.name,
	level      = EXCLUDED.level,
	category   = EXCLUDED.category,
	state_id   = EXCLUDED.state_id,
	ppd        = EXCLUDED.ppd,
	address    = EXCLUDED.address,
	city       = EXCLUDED.city,
	postcode   = EXCLUDED.postcode,
	latitude   = EXCLUDED.latitude,
	longitude  = EXCLUDED.longitude,
	updated_at = now()
RETURNING (xmax = 0)`

// Store implements schools.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ schools.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the tables if needed and seeds the states.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	for _, name := range States {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO states (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("seed state %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) StateIDs(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM states`)
	if err != nil {
		return nil, fmt.Errorf("query states: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		ids[strings.ToLower(strings.TrimSpace(name))] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return ids, nil
}

func (s *Store) UpsertSchool(ctx context.Context, sc schools.School) (bool, error) {
	var created bool
	err := s.pool.QueryRow(ctx, upsertSchool,
		uuid.New(), sc.Code, sc.Name, sc.Level, sc.Category, sc.StateID,
		sc.PPD, sc.Address, sc.City, sc.Postcode, sc.Latitude, sc.Longitude,
	).Scan(&created)
	if err != nil {
		return false, describe(err)
	}
	return created, nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// describe appends the server's detail, which names the offending value, to
// a PostgreSQL error.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Detail == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, pgErr.Detail)
}
