// Package postgres implements the interface for PostgreSQL. Snapshots are kept as a jsonb document per organization.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/store"
)

const schema = `CREATE TABLE IF NOT EXISTS tokenreq_state (
	org        TEXT PRIMARY KEY,
	snapshot   JSONB NOT NULL,
	last_block BIGINT NOT NULL,
	updated    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and creates the state table
// if missing.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create state table: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// LoadState loads from db the snapshot of the organization.
func (p *Postgres) LoadState(ctx context.Context, org string) (snap state.Snapshot, err error) {
	var doc []byte

	err = p.db.QueryRowContext(ctx, `SELECT snapshot FROM tokenreq_state WHERE org = $1`, org).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, store.ErrDataNotFound
	}
	if err != nil {
		return snap, err
	}

	err = json.Unmarshal(doc, &snap)

	return
}

// SaveState saves to db the snapshot of the organization.
func (p *Postgres) SaveState(ctx context.Context, org string, snap state.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `INSERT INTO tokenreq_state (org, snapshot, last_block) VALUES ($1, $2, $3)
		ON CONFLICT (org) DO UPDATE SET snapshot = EXCLUDED.snapshot, last_block = EXCLUDED.last_block,
		updated = now()`, org, doc, int64(snap.LastBlock))

	return err
}

// DeleteState deletes from db the snapshot of the organization.
func (p *Postgres) DeleteState(ctx context.Context, org string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM tokenreq_state WHERE org = $1`, org)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return store.ErrDataNotFound
	}

	return nil
}
