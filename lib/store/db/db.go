// Package db implements the opening and graceful closing of database connections.
package db

import (
	"errors"
	"fmt"

	"github.com/tarancss/tokenreq/lib/store"
	"github.com/tarancss/tokenreq/lib/store/memory"
	"github.com/tarancss/tokenreq/lib/store/mongo"
	"github.com/tarancss/tokenreq/lib/store/postgres"
)

// Database types.
const (
	MEMORY   string = "memory"
	MONGODB  string = "mongodb"
	POSTGRES string = "postgresql"
)

// ErrUnknownDB is returned for an unsupported database type.
var ErrUnknownDB = errors.New("unknown database type")

// New returns a new database connection according to the options (database type). An empty type keeps the state
// in memory only.
func New(options, connection string) (store.DB, error) {
	switch options {
	case MEMORY, "":
		return memory.New(), nil
	case MONGODB:
		return mongo.New(connection)
	case POSTGRES:
		return postgres.New(connection)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownDB, options)
}

// Close gracefully closes the database connection.
func Close(options string, dh store.DB) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case POSTGRES:
		return dh.(*postgres.Postgres).ClosePostgres()
	}

	return nil
}
