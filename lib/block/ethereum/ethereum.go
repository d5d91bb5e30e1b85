// Implements the ledger call service for ethereum networks
package ethereum

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	goeth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/tarancss/ethcli"

	"github.com/tarancss/tokenreq/lib/block/types"
)

// Ethereum implements a connection to an ethereum-type chain. ERC20 metadata and blocks are read with ethcli, calls
// to the organization's apps go through a go-ethereum client.
type Ethereum struct {
	c   *ethcli.EthCli
	rpc *ethclient.Client
	app common.Address
	net string
}

// chainNames maps well known chain ids to the network names used for fallback metadata.
var chainNames = map[int64]string{1: "mainnet", 3: "ropsten", 4: "rinkeby", 5: "goerli", 42: "kovan"}

// Init returns a connection to an ethereum node, using secret if necessary for authentication. app is the address of
// the organization's token request app. When net is empty the network name is derived from the node's chain id.
func Init(ctx context.Context, node, secret, app, net string) (*Ethereum, error) {
	if !common.IsHexAddress(app) {
		return nil, fmt.Errorf("ethereum: invalid app address %q", app)
	}

	e := &Ethereum{app: common.HexToAddress(app), net: net}
	if e.c = ethcli.Init(node, secret); e.c == nil {
		return nil, errors.New("ethereum: cannot connect to ethereum blockchain in " + node)
	}

	hc := &http.Client{}
	if secret != "" {
		hc.Transport = basicAuth{secret: secret, next: http.DefaultTransport}
	}

	rc, err := rpc.DialHTTPWithClient(node, hc)
	if err != nil {
		e.c.End()

		return nil, fmt.Errorf("ethereum: cannot dial %s: %w", node, err)
	}
	e.rpc = ethclient.NewClient(rc)

	if e.net == "" {
		id, err := e.rpc.ChainID(ctx)
		if err != nil {
			e.Close()

			return nil, fmt.Errorf("ethereum: cannot get chain id: %w", err)
		}
		if e.net = chainNames[id.Int64()]; e.net == "" {
			e.net = "private"
		}
	}

	return e, nil
}

type basicAuth struct {
	secret string
	next   http.RoundTripper
}

func (b basicAuth) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.SetBasicAuth("", b.secret)

	return b.next.RoundTrip(r)
}

// NetworkType returns the network name.
func (e *Ethereum) NetworkType() string {
	return e.net
}

// Close ends the connections
func (e *Ethereum) Close() {
	if e.c != nil {
		e.c.End()
	}
	if e.rpc != nil {
		e.rpc.Close()
	}
}

// TokenManagers returns the token managers installed in the organization.
func (e *Ethereum) TokenManagers(ctx context.Context) ([]string, error) {
	return e.addresses(ctx, e.app, appABI, "getTokenManagers")
}

// AcceptedDepositTokens returns the tokens the token request app accepts as deposit.
func (e *Ethereum) AcceptedDepositTokens(ctx context.Context) ([]string, error) {
	return e.addresses(ctx, e.app, appABI, "getAcceptedDepositTokens")
}

// ManagerToken returns the token controlled by a token manager.
func (e *Ethereum) ManagerToken(ctx context.Context, manager string) (string, error) {
	if !common.IsHexAddress(manager) {
		return "", fmt.Errorf("ethereum: invalid token manager address %q", manager)
	}

	res, err := e.call(ctx, common.HexToAddress(manager), managerABI, "token")
	if err != nil {
		return "", err
	}

	return unpackAddress(res)
}

// TokenDecimals returns the decimals of an ERC20 token.
func (e *Ethereum) TokenDecimals(ctx context.Context, token string) (uint64, error) {
	var dec uint64
	err := run(ctx, func() (err error) {
		dec, err = e.c.GetTokenDecimals(token)
		return
	})
	if err != nil {
		return 0, err
	}

	return dec, nil
}

// TokenName returns the name of an ERC20 token.
func (e *Ethereum) TokenName(ctx context.Context, token string) (string, error) {
	var name string
	err := run(ctx, func() (err error) {
		name, err = e.c.GetTokenName(token)
		return
	})
	if err != nil {
		return "", err
	}

	return name, nil
}

// TokenSymbol returns the symbol of an ERC20 token.
func (e *Ethereum) TokenSymbol(ctx context.Context, token string) (string, error) {
	var sym string
	err := run(ctx, func() (err error) {
		sym, err = e.c.GetTokenSymbol(token)
		return
	})
	if err != nil {
		return "", err
	}

	return sym, nil
}

// BlockTimestamp returns the timestamp in seconds of the given block.
func (e *Ethereum) BlockTimestamp(ctx context.Context, block uint64) (uint64, error) {
	var m map[string]interface{}
	err := run(ctx, func() error {
		return e.c.GetBlockByNumber(block, false, &m)
	})
	if err != nil {
		if errors.Is(err, ethcli.ErrNoBlock) {
			err = types.ErrNoBlock
		}

		return 0, fmt.Errorf("ethereum: block %d: %w", block, err)
	}

	b, err := DecodeBlock(m)
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(b.TS, 0, 64)
}

// DecodeBlock returns a struct with the values from the block data.
func DecodeBlock(t interface{}) (b types.Block, err error) {
	m, ok := t.(map[string]interface{})
	if !ok {
		err = types.ErrBlockDecode
		return
	}
	if b.Hash, ok = m["hash"].(string); !ok {
		err = types.ErrNoHash
		return
	}
	if b.PHash, ok = m["parentHash"].(string); !ok {
		err = types.ErrNoParentHash
		return
	}
	if b.Number, ok = m["number"].(string); !ok {
		err = types.ErrNoBlockNumber
		return
	}
	if b.TS, ok = m["timestamp"].(string); !ok {
		err = types.ErrNoTS
		return
	}
	return
}

// run executes f, which cannot be cancelled, returning early if ctx is done first.
func run(ctx context.Context, f func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- f()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Ethereum) call(ctx context.Context, to common.Address, a abi.ABI, method string) ([]interface{}, error) {
	data, err := a.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("ethereum: pack %s: %w", method, err)
	}

	out, err := e.rpc.CallContract(ctx, goeth.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("ethereum: call %s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ethereum: call %s on %s: %w", method, to.Hex(), types.ErrNoContract)
	}

	res, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("ethereum: unpack %s: %w", method, err)
	}

	return res, nil
}

func (e *Ethereum) addresses(ctx context.Context, to common.Address, a abi.ABI, method string) ([]string, error) {
	res, err := e.call(ctx, to, a, method)
	if err != nil {
		return nil, err
	}

	return unpackAddresses(res)
}
