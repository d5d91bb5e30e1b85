// Package memory implements the store interface in process memory, for development runs and tests. Nothing
// survives a restart.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/store"
)

// Memory keeps the snapshots encoded so callers never share slices with the store.
type Memory struct {
	l sync.Mutex
	m map[string][]byte
}

// New returns an empty store.
func New() *Memory {
	return &Memory{m: map[string][]byte{}}
}

// LoadState returns the snapshot saved for org.
func (m *Memory) LoadState(_ context.Context, org string) (snap state.Snapshot, err error) {
	m.l.Lock()
	b, ok := m.m[org]
	m.l.Unlock()

	if !ok {
		return snap, store.ErrDataNotFound
	}
	err = json.Unmarshal(b, &snap)

	return
}

// SaveState replaces the snapshot of org.
func (m *Memory) SaveState(_ context.Context, org string, snap state.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	m.l.Lock()
	m.m[org] = b
	m.l.Unlock()

	return nil
}

// DeleteState removes the snapshot of org.
func (m *Memory) DeleteState(_ context.Context, org string) error {
	m.l.Lock()
	defer m.l.Unlock()

	if _, ok := m.m[org]; !ok {
		return store.ErrDataNotFound
	}
	delete(m.m, org)

	return nil
}
