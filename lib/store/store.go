// Package store defines the interface for the databases caching the read model between runs.
package store

import (
	"context"
	"errors"

	"github.com/tarancss/tokenreq/lib/state"
)

// DB persists one state snapshot per organization.
type DB interface {
	LoadState(ctx context.Context, org string) (state.Snapshot, error)
	SaveState(ctx context.Context, org string, snap state.Snapshot) error
	DeleteState(ctx context.Context, org string) error
}

// Errors returned
var (
	ErrDataNotFound = errors.New("data was not found in store")
)
