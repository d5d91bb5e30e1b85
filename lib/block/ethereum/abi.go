package ethereum

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tarancss/tokenreq/lib/block/types"
)

// Token request app and token manager methods called by the read model.
const (
	appABIJSON = `[
{"constant":true,"inputs":[],"name":"getTokenManagers","outputs":[{"name":"","type":"address[]"}],"payable":false,"stateMutability":"view","type":"function"},
{"constant":true,"inputs":[],"name":"getAcceptedDepositTokens","outputs":[{"name":"","type":"address[]"}],"payable":false,"stateMutability":"view","type":"function"}
]`
	managerABIJSON = `[
{"constant":true,"inputs":[],"name":"token","outputs":[{"name":"","type":"address"}],"payable":false,"stateMutability":"view","type":"function"}
]`
)

var (
	appABI     = mustABI(appABIJSON)
	managerABI = mustABI(managerABIJSON)
)

func mustABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}

	return a
}

func unpackAddresses(res []interface{}) ([]string, error) {
	if len(res) != 1 {
		return nil, fmt.Errorf("%w: %d values", types.ErrBadResult, len(res))
	}

	as, ok := res[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %T", types.ErrBadResult, res[0])
	}

	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Hex()
	}

	return out, nil
}

func unpackAddress(res []interface{}) (string, error) {
	if len(res) != 1 {
		return "", fmt.Errorf("%w: %d values", types.ErrBadResult, len(res))
	}

	a, ok := res[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("%w: %T", types.ErrBadResult, res[0])
	}

	return a.Hex(), nil
}
