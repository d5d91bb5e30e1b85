package ethereum

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/tokenreq/lib/block/types"
)

// block contains the sample data to decode.
var block = map[string]interface{}{"difficulty": "0x7ee56684", "extraData": "0x414952412f7630", "gasLimit": "0x47b784", "gasUsed": "0x47addd", "hash": "0xd44a255e40eee23bd90a54a792f7a35c175400958de22a9bbfe08a7b2c244ed6", "miner": "0x00d8ae40d9a06d0e7a2877b62e32eb959afbe16d", "nonce": "0x34b98c94071402d8", "number": "0x29bf9b", "parentHash": "0x25e2e6cfc2f49ef320c652d91a7bea99a2d115d29ea832631e5f11911a463158", "size": "0x299a", "timestamp": "0x5a952da9", "transactions": []interface{}{"0xc39f3c2c2b5c0a772e8605bbeef7d341937b85e739a3c55d1e7384ac88f31c65"}, "uncles": []string{}} //nolint:gochecknoglobals, lll // testdata

// TestDecodeBlock tests DecodeBlock only as the other calls are direct calls to the ethcli package or to the node.
func TestDecodeBlock(t *testing.T) {
	b, err := DecodeBlock(block)
	require.NoError(t, err)
	assert.Equal(t, "0xd44a255e40eee23bd90a54a792f7a35c175400958de22a9bbfe08a7b2c244ed6", b.Hash)
	assert.Equal(t, "0x29bf9b", b.Number)
	assert.Equal(t, "0x25e2e6cfc2f49ef320c652d91a7bea99a2d115d29ea832631e5f11911a463158", b.PHash)
	assert.Equal(t, "0x5a952da9", b.TS)

	_, err = DecodeBlock("not a block")
	assert.ErrorIs(t, err, types.ErrBlockDecode)

	_, err = DecodeBlock(map[string]interface{}{"hash": "0x01", "parentHash": "0x00", "number": "0x1"})
	assert.ErrorIs(t, err, types.ErrNoTS)
}

func TestUnpack(t *testing.T) {
	managers := []common.Address{
		common.HexToAddress("0x357dd3856d856197c1a000bbab4abcb97dfc92c4"),
		common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f"),
	}

	out, err := appABI.Methods["getTokenManagers"].Outputs.Pack(managers)
	require.NoError(t, err)

	res, err := appABI.Unpack("getTokenManagers", out)
	require.NoError(t, err)

	addrs, err := unpackAddresses(res)
	require.NoError(t, err)
	assert.Equal(t, []string{managers[0].Hex(), managers[1].Hex()}, addrs)

	out, err = managerABI.Methods["token"].Outputs.Pack(managers[1])
	require.NoError(t, err)

	res, err = managerABI.Unpack("token", out)
	require.NoError(t, err)

	a, err := unpackAddress(res)
	require.NoError(t, err)
	assert.Equal(t, "0x6B175474E89094C44Da98b954EedeAC495271d0F", a)

	_, err = unpackAddress([]interface{}{"0x01"})
	assert.ErrorIs(t, err, types.ErrBadResult)
	_, err = unpackAddresses(nil)
	assert.ErrorIs(t, err, types.ErrBadResult)
}

func TestRun(t *testing.T) {
	errCall := errors.New("call failed")
	assert.ErrorIs(t, run(context.Background(), func() error { return errCall }), errCall)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := run(ctx, func() error {
		time.Sleep(time.Second)
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
