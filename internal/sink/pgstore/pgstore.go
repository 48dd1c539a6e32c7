// Package pgstore keeps the last record of each key in a postgres table,
// one row per key.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/phuslu/log"

	"nuha.dev/bustracker/internal/sink"
)

const DefaultTable = "location"

// Schema creates the table used by Store; %s is the table name.
const Schema = `CREATE TABLE IF NOT EXISTS %s (
	path text PRIMARY KEY,
	latitude double precision NOT NULL,
	longitude double precision NOT NULL,
	origin text NOT NULL DEFAULT '',
	destination text NOT NULL DEFAULT '',
	schedule text NOT NULL DEFAULT '',
	pre_origin_coord text NOT NULL DEFAULT '',
	session text NOT NULL DEFAULT '',
	date timestamptz,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

type Store struct {
	db    *pgxpool.Pool
	log   log.Logger
	table string
}

func New(db *pgxpool.Pool, table string) *Store {
	st := &Store{}
	st.db = db
	st.table = table
	if st.table == "" {
		st.table = DefaultTable
	}
	st.log = log.DefaultLogger
	st.log.Context = log.NewContext(nil).Str("module", "pgstore").Value()
	return st
}

func Connect(ctx context.Context, dsn string, table string) (*Store, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return New(pool, table), nil
}

func (st *Store) Init(ctx context.Context) error {
	_, err := st.db.Exec(ctx, fmt.Sprintf(Schema, pgx.Identifier{st.table}.Sanitize()))
	if err != nil {
		st.log.Error().Err(err).Msg("error creating table")
	}
	return err
}

func (st *Store) Put(ctx context.Context, key string, r sink.Record) error {
	q := fmt.Sprintf(`INSERT INTO %s (path,latitude,longitude,origin,destination,schedule,pre_origin_coord,session,date,updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	ON CONFLICT (path) DO UPDATE SET latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude,
	origin=EXCLUDED.origin, destination=EXCLUDED.destination, schedule=EXCLUDED.schedule,
	pre_origin_coord=EXCLUDED.pre_origin_coord, session=EXCLUDED.session, date=EXCLUDED.date, updated_at=now()`,
		pgx.Identifier{st.table}.Sanitize())
	_, err := st.db.Exec(ctx, q, key, r.Latitude, r.Longitude, r.Origin, r.Destination, r.Schedule, r.PreOriginCoord, r.Session, r.Date)
	if err != nil {
		return fmt.Errorf("postgres upsert %s: %w", key, err)
	}
	return nil
}

func (st *Store) Get(ctx context.Context, key string) (sink.Record, error) {
	var r sink.Record
	q := fmt.Sprintf(`SELECT latitude,longitude,origin,destination,schedule,pre_origin_coord,session,date FROM %s WHERE path=$1`,
		pgx.Identifier{st.table}.Sanitize())
	err := st.db.QueryRow(ctx, q, key).Scan(&r.Latitude, &r.Longitude, &r.Origin, &r.Destination, &r.Schedule, &r.PreOriginCoord, &r.Session, &r.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, sink.ErrNotFound
	}
	return r, err
}

func (st *Store) Close() error {
	st.db.Close()
	return nil
}
