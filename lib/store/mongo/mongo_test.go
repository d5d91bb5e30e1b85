//go:build integration
// +build integration

package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/store"
)

// This test requires an available MongoDB server at localhost:27017.
var uri = "mongodb://localhost:27017"

func TestMongo(t *testing.T) {
	ctx := context.Background()
	org := "test-org"

	m, err := New(uri)
	require.NoError(t, err)
	defer m.CloseMongo()

	var _ store.DB = m

	_ = m.DeleteState(ctx, org)

	_, err = m.LoadState(ctx, org)
	assert.ErrorIs(t, err, store.ErrDataNotFound)

	snap := state.Snapshot{
		Account:        "0x357dd3856d856197c1a000bbAb4aBCB97Dfc92c4",
		IsSyncing:      true,
		OrgTokens:      []state.Token{{Address: "0x01", Decimals: "18", Name: "One", Symbol: "ONE"}},
		AcceptedTokens: []state.Token{{Address: "0x02", Decimals: "6", Name: "Two", Symbol: "TWO"}},
		Requests: []state.Request{
			{RequestID: "1", DepositAmount: "1000000000000000000", Status: state.Pending, Date: 1600000000000},
		},
		LastBlock: 9,
	}
	require.NoError(t, m.SaveState(ctx, org, snap))

	got, err := m.LoadState(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	snap.Requests[0].Status = state.Approved
	snap.LastBlock = 10
	require.NoError(t, m.SaveState(ctx, org, snap))

	got, err = m.LoadState(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, state.Approved, got.Requests[0].Status)
	assert.Equal(t, uint64(10), got.LastBlock)

	require.NoError(t, m.DeleteState(ctx, org))
	assert.ErrorIs(t, m.DeleteState(ctx, org), store.ErrDataNotFound)
}
